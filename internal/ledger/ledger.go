package ledger

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/tenant"
)

// AuditLedger seals pipeline runs into content-addressed entries and serves
// tenant-scoped lookups. Seal failures are fatal: they are surfaced to the
// caller, never retried, because a partial record would corrupt the audit
// guarantee.
type AuditLedger struct {
	store  Store
	clock  func() time.Time
	logger *slog.Logger
}

// NewAuditLedger creates an audit ledger over the given store.
// Logger may be nil.
func NewAuditLedger(store Store, logger *slog.Logger) *AuditLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLedger{
		store:  store,
		clock:  time.Now,
		logger: logger,
	}
}

// Seal canonicalizes the run context, computes its digest, and appends the
// entry. Called exactly once per run, at the terminal state.
func (l *AuditLedger) Seal(ctx context.Context, rc *pipeline.RunContext) (*Entry, error) {
	if rc.OrgID == "" {
		return nil, tenant.ErrMissingTenant
	}

	sealedAt := l.clock().UTC().Truncate(time.Microsecond)
	payload, err := Canonicalize(rc, sealedAt)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		EntryID:  uuid.New().String(),
		OrgID:    rc.OrgID,
		RunID:    rc.RunID,
		SiteID:   rc.SiteID,
		Digest:   DigestOf(payload),
		Payload:  payload,
		SealedAt: sealedAt,
	}

	if err := l.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("ledger seal failed for run %s: %w", rc.RunID, err)
	}

	l.logger.Info("sealed run",
		"run_id", rc.RunID,
		"org_id", rc.OrgID,
		"site_id", rc.SiteID,
		"digest", entry.Digest,
		"history_len", len(rc.History))
	return entry.clone(), nil
}

// Get retrieves a sealed entry for the requesting tenant. The tenant check is
// enforced here as well as in the store: a store returning another org's
// entry is an isolation fault and is surfaced, not masked as a miss.
func (l *AuditLedger) Get(ctx context.Context, orgID, runID string) (*Entry, error) {
	if orgID == "" {
		return nil, tenant.ErrMissingTenant
	}

	entry, err := l.store.Get(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	if entry.OrgID != orgID {
		l.logger.Error("store returned entry for wrong org",
			"requested_org", orgID,
			"entry_org", entry.OrgID,
			"run_id", runID)
		return nil, tenant.ErrTenantMismatch
	}
	return entry, nil
}

// ListBySite retrieves a tenant's sealed entries for one site, newest first.
func (l *AuditLedger) ListBySite(ctx context.Context, orgID, siteID string, limit int) ([]*Entry, error) {
	if orgID == "" {
		return nil, tenant.ErrMissingTenant
	}

	entries, err := l.store.ListBySite(ctx, orgID, siteID, limit)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.OrgID != orgID {
			l.logger.Error("store returned entry for wrong org",
				"requested_org", orgID,
				"entry_org", entry.OrgID,
				"run_id", entry.RunID)
			return nil, tenant.ErrTenantMismatch
		}
	}
	return entries, nil
}

// Verify recomputes the digest from the stored payload and compares it to the
// recorded digest. A single altered payload byte fails verification.
func (l *AuditLedger) Verify(entry *Entry) bool {
	if entry == nil {
		return false
	}
	computed := DigestOf(entry.Payload)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(entry.Digest)) == 1
}
