package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"cats_bot/internal/bot"
	"cats_bot/internal/config"
	"cats_bot/internal/datasource"
	"cats_bot/internal/fetcher"
	"cats_bot/internal/scheduler"
	"cats_bot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath, storage.WithRetention(cfg.CacheRetention))
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	f := fetcher.New(
		&http.Client{Timeout: 30 * time.Second},
		fetcher.WithBaseURL(cfg.CatAPIBaseURL),
		fetcher.WithAPIKey(cfg.CatAPIKey),
		fetcher.WithRateLimit(cfg.APIRateLimit),
		fetcher.WithSimulatedOffline(cfg.SimulateOffline),
	)
	if cfg.SimulateOffline {
		log.Warn("simulating offline mode, every API call will fail")
	}

	b, err := bot.New(cfg.TelegramBotToken, store, f, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "page_size", cfg.PageSize, "sync_interval", cfg.SyncInterval)

	if cfg.SyncInterval > 0 {
		syncLog := log.With("component", "sync")
		sched := scheduler.New(datasource.New(f, store, cfg.PageSize, syncLog), syncLog)
		sched.SetTickInterval(cfg.SyncInterval)
		go sched.Run(ctx)
	}

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return slog.New(handler)
}
