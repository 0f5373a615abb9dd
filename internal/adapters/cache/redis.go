// Package cache shares check-in dedupe state between kiosks through redis.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/kiosk/internal/domain/dedupe"
	"github.com/okian/kiosk/pkg/logger"
	"github.com/okian/kiosk/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "kiosk:checkin:"
	pingTimeout = 5 * time.Second
)

// Store is the subset of the redis client the deduper needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Options holds the redis connection settings.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to redis and pings it once. A failed ping is logged and
// the client is returned anyway; calls fall back until redis is reachable.
func NewClient(ctx context.Context, opts Options, log logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn(ctx, "redis unreachable, check-in dedupe falls back to memory",
			logger.String("addr", opts.Addr), logger.Error(err))
	} else {
		log.Info(ctx, "connected to redis", logger.String("addr", opts.Addr))
	}
	return client
}

// RedisDeduper implements dedupe.Deduper with SET NX and a TTL so every kiosk
// sharing the redis instance checks an employee in once per event window.
type RedisDeduper struct {
	store    Store
	ttl      time.Duration
	fallback dedupe.Deduper
	recorded atomic.Int64
	log      logger.Logger
}

// NewRedisDeduper wraps store. fallback answers while redis is failing.
func NewRedisDeduper(store Store, ttl time.Duration, fallback dedupe.Deduper, log logger.Logger) *RedisDeduper {
	if fallback == nil {
		fallback = dedupe.NewInMemoryDeduper(dedupe.WithTTL(ttl))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisDeduper{store: store, ttl: ttl, fallback: fallback, log: log}
}

// Key returns the redis key for a check-in key.
func Key(checkinKey string) string {
	return keyPrefix + checkinKey
}

// SeenAndRecord implements dedupe.Deduper.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	ok, err := d.store.SetNX(ctx, Key(key), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		metrics.RecordErrorByComponent("redis", "setnx")
		d.log.Warn(ctx, "redis dedupe failed, using memory", logger.String("key", key), logger.Error(err))
		return d.fallback.SeenAndRecord(ctx, key)
	}
	if ok {
		d.recorded.Add(1)
	}
	return !ok
}

// Unrecord implements dedupe.Deduper.
func (d *RedisDeduper) Unrecord(ctx context.Context, key string) {
	d.fallback.Unrecord(ctx, key)
	n, err := d.store.Del(ctx, Key(key)).Result()
	if err != nil {
		metrics.RecordErrorByComponent("redis", "del")
		d.log.Warn(ctx, "redis unrecord failed", logger.String("key", key), logger.Error(err))
		return
	}
	if n > 0 {
		d.recorded.Add(-1)
	}
}

// Size returns how many keys this kiosk recorded in redis plus the fallback's size.
func (d *RedisDeduper) Size() int64 {
	return d.recorded.Load() + d.fallback.Size()
}
