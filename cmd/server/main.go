package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hexfold/streamrelay/internal/api"
	"github.com/hexfold/streamrelay/internal/api/handler"
	"github.com/hexfold/streamrelay/internal/config"
	"github.com/hexfold/streamrelay/internal/downloader"
	"github.com/hexfold/streamrelay/internal/history"
	"github.com/hexfold/streamrelay/internal/resolver"
	"github.com/hexfold/streamrelay/internal/service"
	"github.com/hexfold/streamrelay/internal/session"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamrelay %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load .env if present; env vars still win through envconfig.
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamrelay",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize dependencies
	res := resolver.NewYtDlpResolver(cfg.Resolver, logger)
	fetcher := downloader.NewHTTPFetcher(cfg.Download)
	fetcher.SetLogger(logger)

	// Transfer audit log is optional
	var store *history.Store
	var recorder session.Recorder
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History, logger)
		if err != nil {
			logger.Error("failed to open history store", "error", err)
			os.Exit(1)
		}
		recorder = store
	}

	registry := session.NewRegistry(cfg.Session.GraceWindow, recorder, logger)
	reaper := session.NewReaper(registry, cfg.Session.SweepInterval, logger)
	reaper.Start()

	proxySvc := service.NewProxyService(res, fetcher, logger)

	// Initialize handlers
	videoHandler := handler.NewVideoHandler(proxySvc, registry, logger)
	sessionHandler := handler.NewSessionHandler(registry, logger)
	healthHandler := handler.NewHealthHandler(registry)
	var historyHandler *handler.HistoryHandler
	if store != nil {
		historyHandler = handler.NewHistoryHandler(store, logger)
	}

	// Setup router
	router := api.NewRouter(videoHandler, sessionHandler, healthHandler, historyHandler, cfg.Server.AdminAPIKey)

	// Periodic retention cleanup for the audit log
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	if store != nil {
		go func() {
			ticker := time.NewTicker(6 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-cleanupCtx.Done():
					return
				case <-ticker.C:
					if err := store.CleanupOld(cleanupCtx); err != nil {
						logger.Error("history cleanup failed", "error", err)
					}
				}
			}
		}()
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancelCleanup()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests; in-flight streams get the grace window.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := reaper.Stop(5 * time.Second); err != nil {
		logger.Error("reaper shutdown error", "error", err)
	}

	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("history store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
