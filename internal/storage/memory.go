package storage

import (
	"context"
	"sync"
	"time"

	"github.com/org/accessgate/pkg/models"
)

// MemoryBackend is an in-memory Backend used for dev mode (no database
// configured) and tests. Replace swaps the whole slice under the write
// lock and Get returns a copy, so readers never observe a partial set.
type MemoryBackend struct {
	mu         sync.RWMutex
	allowlists map[string]*models.Allowlist
	audit      []*models.AuditRecord
	nextID     int64
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		allowlists: make(map[string]*models.Allowlist),
		nextID:     1,
	}
}

func (m *MemoryBackend) Close() {}

func (m *MemoryBackend) GetAllowlist(_ context.Context, scope string) (*models.Allowlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	al, ok := m.allowlists[scope]
	if !ok {
		return &models.Allowlist{Scope: scope}, nil
	}
	origins := make([]string, len(al.Origins))
	copy(origins, al.Origins)
	return &models.Allowlist{Scope: scope, Origins: origins, UpdatedAt: al.UpdatedAt}, nil
}

func (m *MemoryBackend) ReplaceAllowlist(_ context.Context, scope string, origins []string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	stored := make([]string, len(origins))
	copy(stored, origins)
	m.allowlists[scope] = &models.Allowlist{Scope: scope, Origins: stored, UpdatedAt: now}
	return now, nil
}

func (m *MemoryBackend) WriteAuditRecord(_ context.Context, rec *models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rec
	r.ID = m.nextID
	m.nextID++
	m.audit = append(m.audit, &r)
	return nil
}

func (m *MemoryBackend) QueryAuditLog(_ context.Context, filter AuditFilter) ([]*models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []*models.AuditRecord
	skipped := 0
	// Newest first, matching the postgres ordering.
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		rec := m.audit[i]
		if filter.OriginAddress != "" && rec.OriginAddress != filter.OriginAddress {
			continue
		}
		if filter.Result != "" && rec.Result != filter.Result {
			continue
		}
		if filter.Since != nil && rec.Timestamp.Before(*filter.Since) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		r := *rec
		out = append(out, &r)
	}
	return out, nil
}

func (m *MemoryBackend) CountAuditRecords(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.audit)), nil
}
