package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/sitesentinel/internal/ledger"
	"github.com/onnwee/sitesentinel/internal/middleware"
	"github.com/onnwee/sitesentinel/internal/tenant"
)

// ProofResponse represents a sealed audit entry.
type ProofResponse struct {
	EntryID  string `json:"entry_id"`
	RunID    string `json:"run_id"`
	SiteID   string `json:"site_id"`
	Digest   string `json:"digest"`
	Payload  string `json:"payload"`
	SealedAt string `json:"sealed_at"`
}

// VerifyResponse reports whether a stored proof still matches its digest.
type VerifyResponse struct {
	RunID  string `json:"run_id"`
	Digest string `json:"digest"`
	Valid  bool   `json:"valid"`
}

// ProofListResponse is the response for listing a site's proofs.
type ProofListResponse struct {
	Proofs []ProofResponse `json:"proofs"`
}

// ProofHandlers holds dependencies for audit ledger HTTP handlers.
type ProofHandlers struct {
	ledger *ledger.AuditLedger
}

// NewProofHandlers creates a new ProofHandlers instance.
func NewProofHandlers(l *ledger.AuditLedger) *ProofHandlers {
	return &ProofHandlers{ledger: l}
}

func proofResponse(entry *ledger.Entry) ProofResponse {
	return ProofResponse{
		EntryID:  entry.EntryID,
		RunID:    entry.RunID,
		SiteID:   entry.SiteID,
		Digest:   entry.Digest,
		Payload:  base64.StdEncoding.EncodeToString(entry.Payload),
		SealedAt: entry.SealedAt.Format(time.RFC3339Nano),
	}
}

// runIDFromPath extracts the run ID from /api/proofs/{runId}[/verify].
func runIDFromPath(path string) (runID string, verify, ok bool) {
	pathParts := strings.Split(strings.TrimPrefix(path, "/api/proofs/"), "/")
	switch {
	case len(pathParts) == 1 && pathParts[0] != "":
		return pathParts[0], false, true
	case len(pathParts) == 2 && pathParts[0] != "" && pathParts[1] == "verify":
		return pathParts[0], true, true
	default:
		return "", false, false
	}
}

// GetProof handles GET /api/proofs/{runId} - retrieves a sealed proof.
// It also serves GET /api/proofs/{runId}/verify, which recomputes the digest
// over the stored payload and reports whether it still matches.
func (h *ProofHandlers) GetProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, verify, ok := runIDFromPath(r.URL.Path)
	if !ok {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
		return
	}

	orgID := tenant.OrgIDFromContext(ctx)
	if orgID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing organization context")
		return
	}

	entry, err := h.ledger.Get(ctx, orgID, runID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound), errors.Is(err, tenant.ErrTenantMismatch):
			// A proof belonging to another tenant is indistinguishable from
			// a missing one.
			ctx = middleware.SetErrorCode(ctx, ErrCodeRunNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeRunNotFound, "Proof not found")
		default:
			slog.ErrorContext(ctx, "failed to get proof", "error", err, "run_id", runID)
			ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		}
		return
	}

	if verify {
		WriteJSON(w, ctx, http.StatusOK, VerifyResponse{
			RunID:  entry.RunID,
			Digest: entry.Digest,
			Valid:  h.ledger.Verify(entry),
		})
		return
	}

	WriteJSON(w, ctx, http.StatusOK, proofResponse(entry))
}

// ListSiteProofs handles GET /api/sites/{siteId}/proofs - lists sealed proofs
// for one site, newest first. An optional ?limit=N query caps the result.
func (h *ProofHandlers) ListSiteProofs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sites/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] != "proofs" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
		return
	}
	siteID := pathParts[0]

	orgID := tenant.OrgIDFromContext(ctx)
	if orgID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing organization context")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.ListBySite(ctx, orgID, siteID, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list proofs", "error", err, "site_id", siteID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	resp := ProofListResponse{Proofs: make([]ProofResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Proofs = append(resp.Proofs, proofResponse(entry))
	}
	WriteJSON(w, ctx, http.StatusOK, resp)
}
