package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arkflip/arkflip/cmd/arkflip/internal/config"
	"github.com/arkflip/arkflip/journal"
	alog "github.com/arkflip/arkflip/log"
)

func fatal(msg string, err error) {
	slog.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

func main() {
	// optional; flags and real env vars always win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	cfg := config.DefaultConfig()
	fs := config.NewConfigFlagSet(&cfg)

	if err := fs.Parse(os.Args[1:]); err != nil {
		fatal("parsing flags failed", err)
	}

	if err := config.ApplyEnvDefaults(fs, &cfg); err != nil {
		fatal("invalid parameters", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatal("invalid configuration", err)
	}

	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		fatal("journal init failed", err)
	}
	defer jnl.Close()

	jnlHandler := journal.NewHandler(jnl, journal.WithMinLevel(slog.LevelInfo))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jnlHandler.Close(closeCtx); err != nil {
			slog.Warn("journal log handler close failed", slog.String("error", err.Error()))
		}
	}()

	logger := slog.New(alog.NewMultiHandler(config.GetLogHandler(cfg), jnlHandler))
	slog.SetDefault(logger)
	log.SetOutput(slog.NewLogLogger(logger.Handler(), slog.LevelDebug).Writer())

	appCtx = alog.ContextWithLogger(appCtx, logger)

	logger.Info("starting",
		slog.String("asset", cfg.Asset),
		slog.String("quote", cfg.Quote),
		slog.Float64("speed_factor", cfg.SpeedFactor))
	logJournalSummary(appCtx, logger, jnl)

	// every session starts over in the buy phase with a fresh browser
	for {
		sess := NewSession(cfg, logger, jnl)
		err := sess.Run(appCtx)

		if appCtx.Err() != nil || errors.Is(err, context.Canceled) {
			logger.Info("shutting down")
			return
		}

		logger.Error("session crashed, restarting",
			slog.String("error", err.Error()),
			slog.Duration("cooldown", cfg.RestartCooldown))

		select {
		case <-appCtx.Done():
			logger.Info("shutting down")
			return
		case <-time.After(cfg.RestartCooldown):
		}
	}
}
