package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/marcus/formsync/internal/api"
	"github.com/marcus/formsync/internal/crypto"
	"github.com/marcus/formsync/internal/serverdb"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// Route to admin subcommands if present
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(os.Args[2:])
		return
	}

	cfg := api.LoadConfig()
	slog.SetDefault(slog.New(newLogHandler(cfg)))

	store, err := serverdb.OpenWithDriver(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		slog.Error("open server db", "err", err, "driver", cfg.DBDriver, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.TokenKey != "" {
		sealer, err := crypto.NewSealer(cfg.TokenKey)
		if err != nil {
			slog.Error("token key", "err", err)
			os.Exit(1)
		}
		store.SetTokenSealer(sealer)
	} else {
		slog.Warn("FORMSYNC_TOKEN_KEY not set, Airtable tokens are stored unencrypted")
	}

	srv, err := api.NewServer(cfg, store)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started",
		"addr", cfg.ListenAddr,
		"driver", store.Driver(),
		"airtable_oauth", cfg.AirtableClientID != "",
		"webhook", cfg.WebhookURL != "",
	)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func newLogHandler(cfg api.Config) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}
