package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hexfold/streamrelay/internal/history"
)

// HistoryHandler serves the transfer audit log.
type HistoryHandler struct {
	store  *history.Store
	logger *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store *history.Store, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger,
	}
}

// HistoryResponse contains a paginated transfer list.
type HistoryResponse struct {
	Transfers []history.Entry `json:"transfers"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}

// List handles GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	entries, total, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("history list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Transfers: entries,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}
