package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/accessgate/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Backend defines the persistence interface for the access gate.
type Backend interface {
	// Allowlist. GetAllowlist returns an empty, zero-UpdatedAt allowlist
	// for a scope that has never been set, never ErrNotFound, so the
	// engine's fail-closed behavior falls out of plain non-membership.
	// ReplaceAllowlist atomically overwrites the full set for a scope;
	// concurrent readers observe either the old set or the new one.
	GetAllowlist(ctx context.Context, scope string) (*models.Allowlist, error)
	ReplaceAllowlist(ctx context.Context, scope string, origins []string) (time.Time, error)

	// Audit trail, append-only. The core never updates or deletes records.
	WriteAuditRecord(ctx context.Context, rec *models.AuditRecord) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error)
	CountAuditRecords(ctx context.Context) (int64, error)

	// Lifecycle
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	OriginAddress string
	Result        string
	Since         *time.Time
	Limit         int
	Offset        int
}
