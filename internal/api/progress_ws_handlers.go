// Package api provides HTTP handlers for run progress WebSocket subscriptions.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/onnwee/sitesentinel/internal/middleware"
	"github.com/onnwee/sitesentinel/internal/progress"
	"github.com/onnwee/sitesentinel/internal/tenant"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper CORS checking based on configuration
		// For now, allow all origins (should be restricted in production)
		return true
	},
}

// ProgressWebSocketHandlers holds dependencies for WebSocket handlers.
type ProgressWebSocketHandlers struct {
	broadcaster *progress.Broadcaster
}

// NewProgressWebSocketHandlers creates a new ProgressWebSocketHandlers instance.
func NewProgressWebSocketHandlers(broadcaster *progress.Broadcaster) *ProgressWebSocketHandlers {
	return &ProgressWebSocketHandlers{broadcaster: broadcaster}
}

// SubscribeToRunEvents handles WebSocket connections for real-time stage
// transition updates of a compliance run.
// GET /api/runs/{runId}/events
func (h *ProgressWebSocketHandlers) SubscribeToRunEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Extract run ID from URL path
	// Expected: /api/runs/{runId}/events
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] != "events" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
		return
	}
	runID := pathParts[0]

	orgID := tenant.OrgIDFromContext(ctx)
	if orgID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing organization context")
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"run_id", runID,
		)
		return
	}

	// The subscription is scoped to the caller's org: events of a run owned
	// by another tenant are never delivered to this connection.
	sub := h.broadcaster.Subscribe(runID, orgID, conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to run events",
		"run_id", runID,
		"request_id", requestID,
	)

	defer func() {
		h.broadcaster.Unsubscribe(sub)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed",
			"run_id", runID,
			"request_id", requestID,
		)
	}()

	// Keep connection alive - read messages to detect disconnection
	// We don't expect clients to send messages, but we need to read to detect when they disconnect
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"run_id", runID,
				)
			}
			break
		}
	}
}
