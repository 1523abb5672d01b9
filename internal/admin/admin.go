// Package admin is the privileged allowlist administration surface.
// Every runtime operation passes through the decision engine first, so
// administration is itself dual-validated; the one exception is the
// trusted bootstrap path used once at provisioning time.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/accessgate/internal/allowlist"
	"github.com/org/accessgate/internal/engine"
	"github.com/org/accessgate/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyBootstrapped is returned when Bootstrap is called after the
// allowlist has been set through any path.
var ErrAlreadyBootstrapped = errors.New("allowlist already bootstrapped")

// AccessDeniedError carries the engine's decision for a denied
// administrative call so the transport layer can map its reason code.
type AccessDeniedError struct {
	Decision models.AccessDecision
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Decision.ReasonCode)
}

// Service gates allowlist reads and writes behind the decision engine.
type Service struct {
	engine    *engine.Engine
	allowlist *allowlist.Store
}

// NewService creates an admin Service.
func NewService(eng *engine.Engine, store *allowlist.Store) *Service {
	return &Service{engine: eng, allowlist: store}
}

// GetAllowlist returns the current allowlist after the caller passes
// dual validation. A denial returns *AccessDeniedError.
func (s *Service) GetAllowlist(ctx context.Context, origin, credential string) (*models.Allowlist, error) {
	if err := s.authorize(ctx, origin, credential); err != nil {
		return nil, err
	}
	return s.allowlist.Get(ctx)
}

// SetAllowlist atomically replaces the allowlist after the caller
// passes dual validation. Malformed origins reject the whole set.
func (s *Service) SetAllowlist(ctx context.Context, origin, credential string, origins []string) (time.Time, error) {
	if err := s.authorize(ctx, origin, credential); err != nil {
		return time.Time{}, err
	}
	updatedAt, err := s.allowlist.Replace(ctx, origins)
	if err != nil {
		return time.Time{}, err
	}
	log.Info().Int("origins", len(origins)).Str("by", origin).Msg("allowlist replaced")
	return updatedAt, nil
}

// Authorize runs the caller through dual validation without touching
// the allowlist. Other privileged surfaces (the audit-log read) gate
// themselves with it.
func (s *Service) Authorize(ctx context.Context, origin, credential string) error {
	return s.authorize(ctx, origin, credential)
}

func (s *Service) authorize(ctx context.Context, origin, credential string) error {
	decision := s.engine.Evaluate(ctx, models.AccessRequest{
		OriginAddress: origin,
		Credential:    credential,
	})
	if decision.Denied() {
		return &AccessDeniedError{Decision: decision}
	}
	return nil
}

// Bootstrap seeds the allowlist exactly once, outside the decision
// engine. It refuses to run if the allowlist was ever set: a fresh
// deploy gets seeded without a permissive window, and the path is dead
// afterward.
func (s *Service) Bootstrap(ctx context.Context, origins []string) error {
	current, err := s.allowlist.Get(ctx)
	if err != nil {
		return fmt.Errorf("checking allowlist state: %w", err)
	}
	if current.IsSet() {
		return ErrAlreadyBootstrapped
	}
	if _, err := s.allowlist.Replace(ctx, origins); err != nil {
		return fmt.Errorf("bootstrapping allowlist: %w", err)
	}
	log.Info().Int("origins", len(origins)).Msg("allowlist bootstrapped")
	return nil
}
