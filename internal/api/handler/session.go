package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hexfold/streamrelay/internal/domain"
	"github.com/hexfold/streamrelay/internal/session"
)

// SessionHandler exposes the in-flight session registry.
type SessionHandler struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry *session.Registry, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		logger:   logger,
	}
}

// SessionResponse represents a session in list responses.
type SessionResponse struct {
	SessionID   string  `json:"sessionId"`
	TargetURL   string  `json:"targetUrl"`
	FormatID    string  `json:"formatId"`
	Filename    string  `json:"filename"`
	Status      string  `json:"status"`
	Bytes       int64   `json:"bytes"`
	Total       int64   `json:"total,omitempty"`
	ElapsedMs   int64   `json:"elapsedMs"`
	BytesPerSec float64 `json:"bytesPerSec"`
}

// ListResponse contains all tracked sessions.
type ListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Active   int               `json:"active"`
}

// List handles GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()

	response := ListResponse{
		Sessions: make([]SessionResponse, 0, len(sessions)),
		Active:   h.registry.Active(),
	}

	for _, s := range sessions {
		bytes, total, elapsed := s.Progress()
		response.Sessions = append(response.Sessions, SessionResponse{
			SessionID:   s.ID.String(),
			TargetURL:   logPrefix(s.TargetURL),
			FormatID:    s.FormatID,
			Filename:    s.Filename,
			Status:      string(s.Status()),
			Bytes:       bytes,
			Total:       total,
			ElapsedMs:   elapsed.Milliseconds(),
			BytesPerSec: s.Throughput(),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// Cancel handles DELETE /api/sessions/{sessionID}
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	err := h.registry.Cancel(domain.SessionID(sessionID))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if errors.Is(err, domain.ErrSessionTerminal) {
			writeError(w, http.StatusConflict, "session already finished")
			return
		}
		h.logger.Error("cancel failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel session")
		return
	}

	h.logger.Info("session cancelled via API", "session_id", sessionID)

	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId":   sessionID,
		"status":      string(domain.SessionCancelled),
		"cancelledAt": time.Now().UTC().Format(time.RFC3339),
	})
}
