// Package api provides HTTP handlers for the SiteSentinel API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/sitesentinel/internal/ledger"
	"github.com/onnwee/sitesentinel/internal/middleware"
	"github.com/onnwee/sitesentinel/internal/orchestrator"
	"github.com/onnwee/sitesentinel/internal/tenant"
	"github.com/onnwee/sitesentinel/internal/validate"
)

// AnalyzeRequest is the body for starting a compliance run.
type AnalyzeRequest struct {
	EvidenceRefs []string `json:"evidence_refs"`
}

// AnalyzeResponse summarizes the sealed result of a compliance run.
type AnalyzeResponse struct {
	RunID    string `json:"run_id"`
	EntryID  string `json:"entry_id"`
	SiteID   string `json:"site_id"`
	Digest   string `json:"digest"`
	SealedAt string `json:"sealed_at"`
}

// AnalysisHandlers holds dependencies for compliance run HTTP handlers.
type AnalysisHandlers struct {
	orch *orchestrator.Orchestrator
}

// NewAnalysisHandlers creates a new AnalysisHandlers instance.
func NewAnalysisHandlers(orch *orchestrator.Orchestrator) *AnalysisHandlers {
	return &AnalysisHandlers{orch: orch}
}

// StartAnalysis handles POST /api/sites/{siteId}/analyze - runs the full
// compliance pipeline for a site and returns the sealed proof summary.
func (h *AnalysisHandlers) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Extract site ID from URL path
	// Expected: /api/sites/{siteId}/analyze
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sites/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] != "analyze" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
		return
	}
	siteID := pathParts[0]

	orgID := tenant.OrgIDFromContext(ctx)
	tc, err := tenant.New(orgID)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing organization context")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	refs := make([]string, 0, len(req.EvidenceRefs))
	for _, ref := range req.EvidenceRefs {
		validated, err := validate.EvidenceURL(ref)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid evidence reference: "+err.Error())
			return
		}
		refs = append(refs, validated)
	}

	entry, err := h.orch.Start(ctx, tc, siteID, refs)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateRun) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeDuplicateRun)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDuplicateRun, "A proof was already sealed for this run")
			return
		}
		slog.ErrorContext(ctx, "compliance run failed",
			"error", err,
			"site_id", siteID,
			"org_id", orgID,
		)
		ctx = middleware.SetErrorCode(ctx, ErrCodeAnalysisFailed)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeAnalysisFailed, "Compliance run could not be sealed")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, AnalyzeResponse{
		RunID:    entry.RunID,
		EntryID:  entry.EntryID,
		SiteID:   entry.SiteID,
		Digest:   entry.Digest,
		SealedAt: entry.SealedAt.Format(time.RFC3339Nano),
	})
}
