package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/accessgate/pkg/models"
)

// PostgresBackend is a Backend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// --- Allowlist ---

func (p *PostgresBackend) GetAllowlist(ctx context.Context, scope string) (*models.Allowlist, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT origins, updated_at FROM allowlists WHERE scope = $1`,
		scope,
	)
	var origins []string
	var updatedAt time.Time
	if err := row.Scan(&origins, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Never set: empty set, zero UpdatedAt. Nothing is allowed.
			return &models.Allowlist{Scope: scope}, nil
		}
		return nil, err
	}
	return &models.Allowlist{Scope: scope, Origins: origins, UpdatedAt: updatedAt}, nil
}

// ReplaceAllowlist overwrites the stored set in a single upsert statement,
// so a concurrent GetAllowlist sees either the old row or the new one.
func (p *PostgresBackend) ReplaceAllowlist(ctx context.Context, scope string, origins []string) (time.Time, error) {
	row := p.pool.QueryRow(ctx,
		`INSERT INTO allowlists (scope, origins, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (scope) DO UPDATE
		 SET origins = EXCLUDED.origins, updated_at = NOW()
		 RETURNING updated_at`,
		scope, origins,
	)
	var updatedAt time.Time
	if err := row.Scan(&updatedAt); err != nil {
		return time.Time{}, fmt.Errorf("replacing allowlist: %w", err)
	}
	return updatedAt, nil
}

// --- Audit ---

func (p *PostgresBackend) WriteAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audit_log (request_id, ts, origin_address, subject_id, display_name, method, result, reason_code, credential_fp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.RequestID, rec.Timestamp, rec.OriginAddress, rec.SubjectID, rec.DisplayName,
		string(rec.Method), rec.Result, string(rec.ReasonCode), rec.CredentialFP,
	)
	return err
}

func (p *PostgresBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error) {
	query := `SELECT id, request_id, ts, origin_address, subject_id, display_name, method, result, reason_code, credential_fp
	          FROM audit_log`
	var conds []string
	var args []any

	if filter.OriginAddress != "" {
		args = append(args, filter.OriginAddress)
		conds = append(conds, fmt.Sprintf("origin_address = $%d", len(args)))
	}
	if filter.Result != "" {
		args = append(args, filter.Result)
		conds = append(conds, fmt.Sprintf("result = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var method, reason string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Timestamp, &rec.OriginAddress,
			&rec.SubjectID, &rec.DisplayName, &method, &rec.Result, &reason, &rec.CredentialFP); err != nil {
			return nil, err
		}
		rec.Method = models.Method(method)
		rec.ReasonCode = models.ReasonCode(reason)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (p *PostgresBackend) CountAuditRecords(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count)
	return count, err
}
