package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TheWicklowWolf/eBookBuddy/internal/api"
	"github.com/TheWicklowWolf/eBookBuddy/internal/books"
	"github.com/TheWicklowWolf/eBookBuddy/internal/config"
	"github.com/TheWicklowWolf/eBookBuddy/internal/ratelimit"
	"github.com/TheWicklowWolf/eBookBuddy/internal/readarr"
	"github.com/TheWicklowWolf/eBookBuddy/internal/recommend"
	"github.com/TheWicklowWolf/eBookBuddy/internal/scraper"
	"github.com/TheWicklowWolf/eBookBuddy/internal/websocket"
)

func main() {
	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Websocket hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// Outbound clients
	readarrClient := readarr.New(cfg.Readarr, logger)
	booksClient := books.New(cfg.Books.APIKey, logger)

	// Discovery pipeline
	goodreads := scraper.New(cfg.Search.MinimumRating, cfg.Search.MinimumVotes, cfg.Browser.WaitDelay, cfg.Browser.Headless, logger)
	limiter := ratelimit.New(cfg.Browser.WaitDelay/2, cfg.Browser.WaitDelay)

	session := recommend.NewSession()
	aggregator := recommend.NewAggregator(session, hub, logger)
	orchestrator := recommend.NewOrchestrator(session, aggregator, goodreads.Recommendations, hub, cfg.Search.ThreadLimit, limiter, logger)

	// API handlers
	handlers := api.NewHandlers(cfg, readarrClient, booksClient, session, orchestrator, hub, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, hub.ClientCount())
	})

	handlers.Routes(r)

	// Automated startup: load the full library pre-checked and search over
	// all of it.
	if cfg.Search.AutoStart {
		delay := cfg.Search.AutoStartDelay
		logger.Info("automated startup scheduled", "delay", delay)
		time.AfterFunc(delay, func() {
			if err := handlers.RefreshLibrary(ctx, true); err != nil {
				logger.Error("automated startup failed", "error", err)
				return
			}
			selected := make([]string, 0)
			for _, item := range session.Library() {
				selected = append(selected, item.Name)
			}
			orchestrator.Start(ctx, selected)
		})
	}

	// Start server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		session.RequestStop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
