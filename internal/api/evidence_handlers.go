package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/sitesentinel/internal/evidence"
	"github.com/onnwee/sitesentinel/internal/middleware"
	"github.com/onnwee/sitesentinel/internal/tenant"
)

// PresignRequest is the body for requesting a signed evidence upload URL.
type PresignRequest struct {
	SiteID      string `json:"site_id"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// EvidenceHandlers holds dependencies for evidence HTTP handlers.
type EvidenceHandlers struct {
	service *evidence.Service
}

// NewEvidenceHandlers creates a new EvidenceHandlers instance.
func NewEvidenceHandlers(service *evidence.Service) *EvidenceHandlers {
	return &EvidenceHandlers{service: service}
}

// PresignUpload handles POST /api/evidence/presign - generates a signed URL
// for uploading one evidence image to object storage.
func (h *EvidenceHandlers) PresignUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID := tenant.OrgIDFromContext(ctx)
	if orgID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing organization context")
		return
	}

	var req PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	signed, err := h.service.SignUpload(ctx, evidence.UploadRequest{
		OrgID:       orgID,
		SiteID:      req.SiteID,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		switch {
		case errors.Is(err, evidence.ErrUnsupportedType):
			ctx = middleware.SetErrorCode(ctx, ErrCodeUnsupportedType)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType, "Only JPEG and PNG evidence is accepted")
		case errors.Is(err, evidence.ErrFileTooLarge):
			ctx = middleware.SetErrorCode(ctx, ErrCodeFileTooLarge)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeFileTooLarge, "Evidence file exceeds the size limit")
		case errors.Is(err, evidence.ErrInvalidSiteID):
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid site ID")
		default:
			slog.ErrorContext(ctx, "failed to presign evidence upload", "error", err, "org_id", orgID)
			ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		}
		return
	}

	WriteJSON(w, ctx, http.StatusOK, signed)
}
