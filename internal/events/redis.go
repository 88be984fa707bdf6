package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const streamMaxLen int64 = 10000

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// RedisBus appends events to a Redis stream for downstream consumers.
type RedisBus struct {
	rdb    *redis.Client
	stream string
}

// NewRedisBus connects and pings the server.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedisBus(rdb, cfg.Stream), nil
}

func newRedisBus(rdb *redis.Client, stream string) *RedisBus {
	if stream == "" {
		stream = "leaguebid:events"
	}
	return &RedisBus{rdb: rdb, stream: stream}
}

func (b *RedisBus) Name() string { return "redis" }

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	args := &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"type":       ev.Type,
			"league_id":  ev.LeagueID,
			"session_id": ev.SessionID,
			"payload":    string(ev.Payload),
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", b.stream, err)
	}
	return nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
