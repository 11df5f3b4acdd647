package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/onnwee/sitesentinel/internal/tracing"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL. Each Append is a single-row
// INSERT, so atomicity comes from the database; no cross-entry transactions
// are needed because entries are independent and never updated.
//
// Tenant scoping is enforced in every query's WHERE clause, mirroring the
// row-level-security policy the schema carries, so the isolation guarantee
// holds even against a database without RLS enabled.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore. Logger may be nil.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Append writes a new entry in a single atomic INSERT.
func (s *PostgresStore) Append(ctx context.Context, entry *Entry) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "compliance_proofs", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	const query = `
		INSERT INTO compliance_proofs (entry_id, org_id, run_id, site_id, digest, payload, sealed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.EntryID, entry.OrgID, entry.RunID, entry.SiteID,
		entry.Digest, entry.Payload, entry.SealedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateRun
		}
		s.logger.Error("failed to append ledger entry",
			slog.String("error", err.Error()),
			slog.String("run_id", entry.RunID),
			slog.String("org_id", entry.OrgID))
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Get retrieves the entry for an org and run.
func (s *PostgresStore) Get(ctx context.Context, orgID, runID string) (*Entry, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "compliance_proofs", tracing.DBOperationQuery)

	const query = `
		SELECT entry_id, org_id, run_id, site_id, digest, payload, sealed_at
		FROM compliance_proofs
		WHERE org_id = $1 AND run_id = $2
	`
	var entry Entry
	err := s.db.QueryRowContext(ctx, query, orgID, runID).Scan(
		&entry.EntryID, &entry.OrgID, &entry.RunID, &entry.SiteID,
		&entry.Digest, &entry.Payload, &entry.SealedAt)
	if errors.Is(err, sql.ErrNoRows) {
		endSpan(nil)
		return nil, ErrNotFound
	}
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	endSpan(nil)
	return &entry, nil
}

// ListBySite retrieves entries for an org and site, newest first.
func (s *PostgresStore) ListBySite(ctx context.Context, orgID, siteID string, limit int) ([]*Entry, error) {
	query := `
		SELECT entry_id, org_id, run_id, site_id, digest, payload, sealed_at
		FROM compliance_proofs
		WHERE org_id = $1 AND site_id = $2
		ORDER BY sealed_at DESC
	`
	args := []any{orgID, siteID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var results []*Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.EntryID, &entry.OrgID, &entry.RunID, &entry.SiteID,
			&entry.Digest, &entry.Payload, &entry.SealedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		results = append(results, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return results, nil
}
