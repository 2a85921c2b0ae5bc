package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ergbridge/ergbridge/pkg/coordinator"
	"github.com/ergbridge/ergbridge/pkg/hass"
	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/optimizer"
	"github.com/ergbridge/ergbridge/pkg/server"
	"github.com/ergbridge/ergbridge/pkg/storage"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// .env is optional, flags can come from the environment
	_ = godotenv.Load()

	// init packages
	db := storage.Configured()
	opt := optimizer.Configured()
	bridge := hass.Configured()
	rec := coordinator.Configured(db, opt, bridge)
	exec := coordinator.ConfiguredExecutor(rec, bridge, bridge)

	// init server
	srv := server.Configured(db, rec, exec)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := bridge.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to connect to mqtt broker", "error", err)
		os.Exit(1)
	}
	defer bridge.Close()

	if err := opt.Health(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "optimizer is not reachable yet", "error", err)
	}

	if err := rec.Restore(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to restore elapsed counters", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).ErrorContext(ctx, "reconciler stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := exec.Run(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).ErrorContext(ctx, "executor stopped", "error", err)
		}
	}()

	// Run blocks until the context is canceled or an error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
	cancel()
	wg.Wait()
	log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
}
