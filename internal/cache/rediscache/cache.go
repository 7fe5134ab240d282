package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"reservo/backend/internal/domain"
)

const (
	keyPrefix     = "reservo:reservations:"
	generationKey = keyPrefix + "gen"
)

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// ListCache stores reservation listings in Redis. Entries are namespaced by
// a generation counter, so invalidation is a single INCR and stale entries
// expire on their own.
type ListCache struct {
	rdb client
	ttl time.Duration
	log *slog.Logger
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, opts Options, log *slog.Logger) (*ListCache, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, opts.TTL, log), rdb, nil
}

func New(rdb client, ttl time.Duration, log *slog.Logger) *ListCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ListCache{rdb: rdb, ttl: ttl, log: log}
}

// Get returns the entry for key in the current generation. The generation
// is returned even on a miss so that Set stores the result under the
// generation it was computed in.
func (c *ListCache) Get(ctx context.Context, key string) ([]domain.Reservation, string, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "cache generation read failed", "err", err)
		return nil, "", false
	}
	raw, err := c.rdb.Get(ctx, entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false
	}
	if err != nil {
		c.log.WarnContext(ctx, "cache read failed", "key", key, "err", err)
		return nil, gen, false
	}
	var rs []domain.Reservation
	if err := json.Unmarshal(raw, &rs); err != nil {
		c.log.WarnContext(ctx, "cache entry corrupt", "key", key, "err", err)
		return nil, gen, false
	}
	return rs, gen, true
}

// Set stores rs under gen. After an Invalidate the entry lands in a
// generation nobody reads and expires with its TTL.
func (c *ListCache) Set(ctx context.Context, gen, key string, rs []domain.Reservation) {
	if gen == "" {
		return
	}
	raw, err := json.Marshal(rs)
	if err != nil {
		c.log.WarnContext(ctx, "cache encode failed", "key", key, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, entryKey(gen, key), raw, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
}

func (c *ListCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed", "err", err)
	}
}

func (c *ListCache) generation(ctx context.Context) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func entryKey(gen, key string) string {
	return keyPrefix + gen + ":" + key
}
