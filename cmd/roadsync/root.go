package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/roadsync/internal/api"
	"github.com/hyperengineering/roadsync/internal/auth"
	"github.com/hyperengineering/roadsync/internal/config"
	"github.com/hyperengineering/roadsync/internal/push"
	"github.com/hyperengineering/roadsync/internal/store"
	"github.com/hyperengineering/roadsync/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "roadsync",
	Short: "Roadsync - road record sync service",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("starting", "version", Version, "level", cfg.Log.Level)

	tokens := auth.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL))
	hub := push.NewHub(tokens)

	db, err := store.NewSQLiteStore(cfg.Database.Path, cfg.Query.PageSize, hub)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	passwordHash, err := auth.HashPassword(cfg.Seed.UserPassword)
	if err != nil {
		return err
	}
	if err := db.SeedDemoData(ctx, cfg.Seed.UserEmail, cfg.Seed.UserName, passwordHash, cfg.Seed.RoadCount); err != nil {
		return err
	}
	slog.Info("demo data ensured", "user", cfg.Seed.UserEmail)

	handler := api.NewHandler(db, tokens)
	router := api.NewRouter(handler, tokens, hub.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	if cfg.Worker.GeneratorEnabled {
		generator := worker.NewRoadGenerator(db, time.Duration(cfg.Worker.GeneratorInterval))
		startWorker(ctx, &wg, "road-generator", generator.Run)
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
