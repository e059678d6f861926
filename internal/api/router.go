package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hexfold/streamrelay/internal/api/handler"
	mw "github.com/hexfold/streamrelay/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
//
// No global timeout middleware: download responses stream for as long as
// the media takes, bounded instead by the server write timeout and the
// upstream stall detector.
func NewRouter(
	videoHandler *handler.VideoHandler,
	sessionHandler *handler.SessionHandler,
	healthHandler *handler.HealthHandler,
	historyHandler *handler.HistoryHandler,
	adminAPIKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// CORS for browser clients hitting the proxy directly
	r.Use(mw.CORS)

	// Public API (no auth)
	r.Get("/api/health", healthHandler.Health)
	r.Post("/api/video/info", videoHandler.Info)
	r.Get("/api/video/download", videoHandler.Download)

	// Admin surface. With no key configured the group is open, which is
	// the single-user default.
	r.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(adminAPIKey))

		r.Get("/api/sessions", sessionHandler.List)
		r.Delete("/api/sessions/{sessionID}", sessionHandler.Cancel)
		r.Get("/api/stats", healthHandler.Stats)

		if historyHandler != nil {
			r.Get("/api/history", historyHandler.List)
		}
	})

	return r
}
