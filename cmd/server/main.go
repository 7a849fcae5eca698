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

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/asset"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/auth"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/config"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/live"
	mw "github.com/holidaypuzzle/puzzle/backend-go/internal/middleware"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/puzzle"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/session"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The definition is built once; a broken asset should stop startup
	// rather than fail every session later.
	puzzles := puzzle.NewBuilder(
		puzzle.CandidatePaths(cfg.PuzzleAsset, cfg.WebRoot, cfg.ContentRoot, cfg.PuzzleAssetName),
		logger,
	)
	def, err := puzzles.Definition()
	if err != nil {
		slog.Error("build puzzle definition", "error", err)
		os.Exit(1)
	}
	slog.Info("puzzle ready", "puzzle", def.PuzzleID, "version", def.Version, "pieces", def.PieceCount())

	userStore, closeUsers, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		slog.Error("open user store", "store", cfg.UserStore, "error", err)
		os.Exit(1)
	}
	defer closeUsers()

	hub := live.NewHub(logger)
	go hub.Run(ctx)

	sessions := session.NewService(puzzles, session.NewMemoryStore(),
		session.WithLogger(logger),
		session.WithTimeouts(cfg.InactivityTimeout, cfg.CompletedRetention),
		session.WithEvents(hub),
		session.WithRecorder(userStore),
	)
	go sweep(ctx, sessions, cfg.SweepInterval)

	tickets := auth.NewTickets(cfg.TicketSecret, cfg.TicketTTL)

	sessionHandler := session.NewHandler(sessions, tickets, logger)
	userHandler := users.NewHandler(userStore, cfg.PublicBaseURL, logger)
	puzzleHandler := puzzle.NewHandler(puzzles, logger)
	liveHandler := live.NewHandler(hub, sessions, tickets, cfg.AllowedOrigins, logger)
	assetHandler := asset.NewHandler(cfg.WebRoot, logger)

	r := mux.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(chimw.Recoverer)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/puzzle", puzzleHandler.Layout).Methods("GET")
	userHandler.Register(api)
	sessionHandler.Register(api)

	// WebSocket endpoint
	liveHandler.Register(r)

	r.HandleFunc("/assets/pieces/{name}", puzzleHandler.Asset).Methods("GET")
	r.PathPrefix("/").Handler(assetHandler.Serve())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: mw.CORS(cfg.AllowedOrigins)(r),
		// No read or write timeout: either would also cut live-feed sockets.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop the hub first so live sockets close and do not hold Shutdown open.
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openUserStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (users.Store, func(), error) {
	switch cfg.UserStore {
	case config.UserStorePostgres:
		pool, err := users.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := users.NewPGStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		store, err := users.NewFileStore(cfg.UserDataFile, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func sweep(ctx context.Context, sessions *session.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := sessions.Sweep(ctx); n > 0 {
				slog.Debug("swept sessions", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
