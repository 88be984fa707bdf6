package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaguebid/internal/app"
	"leaguebid/internal/market"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	deps, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	sessionLength := cfg.Market.SessionLength.Duration
	if cfg.Worker.RunOnce {
		if err := rotate(ctx, logger, deps.Market, sessionLength); err != nil {
			logger.Error("rotation failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.Worker.TickEvery.Duration)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.Worker.TickEvery.String(), "session_length", sessionLength.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := rotate(ctx, logger, deps.Market, sessionLength); err != nil {
				logger.Error("rotation failed", "err", err)
			}
		}
	}
}

func rotate(ctx context.Context, logger *slog.Logger, svc *market.Service, sessionLength time.Duration) error {
	rotations, err := svc.RotateAll(ctx, sessionLength)
	for _, r := range rotations {
		attrs := []any{"league_id", r.LeagueID}
		if r.Closed != nil {
			attrs = append(attrs, "closed_sequence", r.Closed.SequenceNumber, "items_sold", r.Closed.ItemsSold)
		}
		if r.Opened != nil {
			attrs = append(attrs, "opened_sequence", r.Opened.Session.SequenceNumber)
		}
		if r.Skipped != "" {
			attrs = append(attrs, "skipped", r.Skipped)
		}
		logger.Info("rotation", attrs...)
	}
	return err
}
