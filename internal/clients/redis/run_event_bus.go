package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
)

// RunEvent announces an analysis-run status transition to subscribers.
type RunEvent struct {
	RunID  uuid.UUID  `json:"run_id"`
	UserID uuid.UUID  `json:"user_id"`
	MealID *uuid.UUID `json:"meal_id,omitempty"`
	Status string     `json:"status"`
	At     time.Time  `json:"at"`
}

type RunEventBus interface {
	Publish(ctx context.Context, event RunEvent) error
	Close() error
}

type runEventBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRunEventBus connects to redis; addr empty is the caller's signal that
// eventing is disabled and they should pass a nil bus instead.
func NewRunEventBus(log *logger.Logger, addr, channel string) (RunEventBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if strings.TrimSpace(channel) == "" {
		channel = "analysis-runs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &runEventBus{
		log:     log.With("client", "RedisRunEventBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *runEventBus) Publish(ctx context.Context, event RunEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("run event bus not initialized")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	return nil
}

func (b *runEventBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
