package allowlist

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/org/accessgate/internal/storage"
	"github.com/org/accessgate/pkg/models"
)

// ValidationError reports a malformed origin in a replacement set.
// The whole replace is rejected; no partial write happens.
type ValidationError struct {
	Origin string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("malformed origin address %q", e.Origin)
}

// Store manages the single system-wide origin allowlist. It validates
// and normalizes origins before handing them to the storage backend;
// atomicity of the replace itself is the backend's contract.
type Store struct {
	backend storage.Backend
}

// NewStore creates a Store over the given backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the current allowlist. A never-set allowlist comes back
// empty with a zero UpdatedAt, which callers must treat as "nothing is
// allowed".
func (s *Store) Get(ctx context.Context) (*models.Allowlist, error) {
	return s.backend.GetAllowlist(ctx, models.ScopeGlobal)
}

// Replace atomically overwrites the allowlist with the given origins.
// Origins are trimmed, deduplicated, and must each parse as an IP
// address; a malformed entry rejects the entire set with a
// *ValidationError.
func (s *Store) Replace(ctx context.Context, origins []string) (time.Time, error) {
	normalized, err := Normalize(origins)
	if err != nil {
		return time.Time{}, err
	}
	return s.backend.ReplaceAllowlist(ctx, models.ScopeGlobal, normalized)
}

// Canonical returns the canonical text form of an origin address, so
// membership checks are insensitive to IPv6 spelling. Unparseable input
// is returned as-is; it can never match a validated allowlist entry.
func Canonical(origin string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(origin))
	if err != nil {
		return origin
	}
	return addr.String()
}

// Normalize trims, validates, deduplicates, and sorts a set of origin
// addresses. Returns *ValidationError on the first malformed entry.
func Normalize(origins []string) ([]string, error) {
	seen := make(map[string]struct{}, len(origins))
	out := make([]string, 0, len(origins))
	for _, raw := range origins {
		o := strings.TrimSpace(raw)
		if o == "" {
			return nil, &ValidationError{Origin: raw}
		}
		addr, err := netip.ParseAddr(o)
		if err != nil {
			return nil, &ValidationError{Origin: o}
		}
		// Canonical text form so "::1" and "0:0:0:0:0:0:0:1" collapse.
		canon := addr.String()
		if _, ok := seen[canon]; ok {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	sort.Strings(out)
	return out, nil
}
