// Package app builds the market service and its optional collaborators from
// configuration. Both server binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"leaguebid/internal/config"
	"leaguebid/internal/db"
	"leaguebid/internal/events"
	"leaguebid/internal/market"
	"leaguebid/internal/notify"
	"leaguebid/internal/store/memory"
	"leaguebid/internal/store/postgres"
)

// Deps is everything a binary needs. Close releases it in reverse order.
type Deps struct {
	Market  *market.Service
	Events  *events.Dispatcher
	closers []func()
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// LoadConfig reads LEAGUEBID_CONFIG (optional TOML path) plus environment.
func LoadConfig() (config.Config, error) {
	return config.Load(os.Getenv("LEAGUEBID_CONFIG"))
}

func Wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Deps, error) {
	deps := &Deps{}

	store, err := wireStore(ctx, cfg, logger, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}

	sinks, err := wireSinks(ctx, cfg, logger, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Events = events.NewDispatcher(logger, sinks...)

	opts := []market.Option{
		market.WithSessionSize(cfg.Market.SessionSize),
		market.WithQuota(market.DefaultQuota(cfg.Market.MaxRoster, cfg.Market.RequireActiveMembership)),
	}
	if len(sinks) > 0 {
		opts = append(opts, market.WithReporter(deps.Events))
	}
	deps.Market = market.NewService(store, logger, opts...)

	if cfg.Market.SeedDemo {
		league, err := deps.Market.SeedDemoLeague(ctx, market.DefaultDemoLeague(cfg.Market.DemoControllers...))
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("seed demo league: %w", err)
		}
		logger.Info("demo league ready", "league_id", league.ID)
	}
	return deps, nil
}

func wireStore(ctx context.Context, cfg config.Config, logger *slog.Logger, deps *Deps) (market.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store; state is lost on restart")
		return memory.New(), nil
	case "postgres":
		pool, err := db.Connect(ctx, db.PoolConfig{
			URL:      cfg.Database.URL,
			MaxConns: int32(cfg.Database.MaxConns),
			MinConns: int32(cfg.Database.MinConns),
		})
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
		if cfg.Database.RunMigrations {
			if err := db.RunMigrations(ctx, pool); err != nil {
				return nil, err
			}
		}
		return postgres.New(pool, logger), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func wireSinks(ctx context.Context, cfg config.Config, logger *slog.Logger, deps *Deps) ([]events.Sink, error) {
	var sinks []events.Sink

	if cfg.Redis.Enabled {
		bus, err := events.NewRedisBus(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
		})
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = bus.Close() })
		sinks = append(sinks, bus)
	}

	if cfg.S3.Enabled {
		archive, err := events.NewS3Archive(ctx, events.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archive)
	}

	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		d, err := notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL)
		if err != nil {
			return nil, err
		}
		senders = append(senders, d)
	}
	if cfg.Notify.TelegramBotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
		if err != nil {
			return nil, err
		}
		senders = append(senders, tg)
	}
	if n := notify.NewNotifier(senders, cfg.Notify.Events, logger); n.Enabled() {
		sinks = append(sinks, events.NewNotifySink(n))
	}
	return sinks, nil
}
