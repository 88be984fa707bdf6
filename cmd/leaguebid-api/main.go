package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaguebid/internal/api"
	"leaguebid/internal/app"
	"leaguebid/internal/auth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.ValidateAPI(); err != nil {
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

	var (
		verifier api.TokenVerifier
		login    api.PasswordLogin
	)
	if cfg.Auth.SupabaseURL != "" {
		supabase := auth.NewSupabaseClient(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey)
		verifier, login = supabase, supabase
	} else {
		verifier = auth.ParseStaticTokens(cfg.Auth.StaticTokens)
		logger.Warn("supabase not configured; accepting static tokens only")
	}

	server := api.New(cfg.Server, logger, verifier, login, deps.Market)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("leaguebid api listening", "addr", cfg.Server.Addr, "driver", cfg.Database.Driver, "sinks", deps.Events.Sinks())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
