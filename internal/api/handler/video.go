package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hexfold/streamrelay/internal/domain"
	"github.com/hexfold/streamrelay/internal/service"
	"github.com/hexfold/streamrelay/internal/session"
)

// VideoHandler handles metadata and download-proxy requests.
type VideoHandler struct {
	proxySvc *service.ProxyService
	registry *session.Registry
	logger   *slog.Logger
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(proxySvc *service.ProxyService, registry *session.Registry, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		proxySvc: proxySvc,
		registry: registry,
		logger:   logger,
	}
}

// InfoRequest is the JSON request body for metadata resolution.
type InfoRequest struct {
	VideoURL string `json:"videoUrl"`
}

// Info handles POST /api/video/info
func (h *VideoHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req InfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingURL.Error())
		return
	}

	info, err := h.proxySvc.Info(r.Context(), req.VideoURL)
	if err != nil {
		h.writeResolveError(w, req.VideoURL, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Download handles GET /api/video/download?url=&filename=&quality=
//
// The response streams the selected format as a forced file download.
// Once the success status is flushed no error body is possible; a
// mid-transfer failure aborts the connection and the client detects
// truncation through the Content-Length mismatch.
func (h *VideoHandler) Download(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	quality := r.URL.Query().Get("quality")
	filename := r.URL.Query().Get("filename")

	if target == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingURL.Error())
		return
	}

	// The transfer context governs resolution, the upstream fetch and
	// the relay. Cancelling it, whether through a client disconnect or
	// the cancel endpoint, tears down the upstream socket itself.
	sessCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	res, err := h.proxySvc.OpenStream(sessCtx, target, quality)
	if err != nil {
		h.writeResolveError(w, target, err)
		return
	}
	defer res.Stream.Body.Close()

	name := service.SanitizeFilename(filename, res.Video.Title, res.Format.Container)
	sess := h.registry.Create(cancel, target, res.Format.ID, name, res.Stream.Length)

	logger := h.logger.With(
		"session_id", sess.ID,
		"format_id", res.Format.ID,
		"target", logPrefix(target),
	)

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", res.Format.ContentType())
	if res.Stream.Length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Stream.Length, 10))
	}
	w.Header().Set("X-Session-ID", sess.ID.String())
	w.WriteHeader(http.StatusOK)

	written, err := h.proxySvc.Relay(sessCtx, w, res.Stream.Body, sess)
	if err != nil {
		// A disconnect can surface as a write error (broken pipe)
		// before the relay notices the dead context, so check both.
		if errors.Is(err, context.Canceled) || sessCtx.Err() != nil {
			// The registry call is a no-op if the cancel endpoint
			// already finished the session.
			h.registry.Cancel(sess.ID)
			logger.Info("transfer cancelled", "bytes", written)
			return
		}

		terr := domain.NewTransferError(sess.ID, "relay", err)
		h.registry.Fail(sess.ID, terr.Error())
		logger.Error("transfer failed", "bytes", written, "error", terr)
		// Headers are flushed; all that is left is to kill the connection.
		panic(http.ErrAbortHandler)
	}

	h.registry.Complete(sess.ID)
	logger.Info("transfer complete", "bytes", written)
}

// writeResolveError maps pipeline errors onto the HTTP error taxonomy.
func (h *VideoHandler) writeResolveError(w http.ResponseWriter, target string, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingURL), errors.Is(err, domain.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoDownloadableFormat):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrResolveFailed), errors.Is(err, domain.ErrUpstreamStatus):
		h.logger.Error("resolution failed", "target", logPrefix(target), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("request failed", "target", logPrefix(target), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// logPrefix truncates target URLs for logging.
func logPrefix(target string) string {
	const max = 64
	if len(target) <= max {
		return target
	}
	return target[:max] + "..."
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
