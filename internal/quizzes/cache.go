package quizzes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quizy/backend/internal/config"
	"github.com/quizy/backend/internal/logger"
	"github.com/quizy/backend/internal/models"
)

// ListCache holds each owner's quiz list. It is a read-through cache: the
// store stays the source of truth and every mutation invalidates the owner.
//
// Every Invalidate bumps the owner's version. A reader takes the version
// before reading the store and passes it to Set, which drops the list if
// the owner was invalidated in between.
type ListCache interface {
	Get(ctx context.Context, ownerID string) ([]models.Quiz, bool)
	Version(ctx context.Context, ownerID string) uint64
	Set(ctx context.Context, ownerID string, version uint64, quizzes []models.Quiz)
	Invalidate(ctx context.Context, ownerID string)
	Close() error
}

// NewListCache builds the cache selected by cfg.Backend.
func NewListCache(cfg config.CacheConfig, log *logger.Logger) (ListCache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryListCache(cfg.TTL), nil
	case "none":
		return noopListCache{}, nil
	case "redis":
		return NewRedisListCache(cfg, log)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// ── Memory ──────────────────────────────────────────────

type memoryEntry struct {
	quizzes []models.Quiz
	expires time.Time
}

type MemoryListCache struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	entries  map[string]memoryEntry
	versions map[string]uint64
}

func NewMemoryListCache(ttl time.Duration) *MemoryListCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryListCache{
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]uint64),
	}
}

func (c *MemoryListCache) Get(_ context.Context, ownerID string) ([]models.Quiz, bool) {
	c.mu.RLock()
	e, ok := c.entries[ownerID]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return append([]models.Quiz(nil), e.quizzes...), true
}

func (c *MemoryListCache) Version(_ context.Context, ownerID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[ownerID]
}

func (c *MemoryListCache) Set(_ context.Context, ownerID string, version uint64, quizzes []models.Quiz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[ownerID] != version {
		return
	}
	c.entries[ownerID] = memoryEntry{
		quizzes: append([]models.Quiz(nil), quizzes...),
		expires: c.now().Add(c.ttl),
	}
}

func (c *MemoryListCache) Invalidate(_ context.Context, ownerID string) {
	c.mu.Lock()
	delete(c.entries, ownerID)
	c.versions[ownerID]++
	c.mu.Unlock()
}

func (c *MemoryListCache) Close() error { return nil }

type noopListCache struct{}

func (noopListCache) Get(context.Context, string) ([]models.Quiz, bool)  { return nil, false }
func (noopListCache) Version(context.Context, string) uint64             { return 0 }
func (noopListCache) Set(context.Context, string, uint64, []models.Quiz) {}
func (noopListCache) Invalidate(context.Context, string)                 {}
func (noopListCache) Close() error                                       { return nil }

// ── Redis ───────────────────────────────────────────────

type RedisListCache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisListCache(cfg config.CacheConfig, log *logger.Logger) (*RedisListCache, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisListCache{rdb: rdb, ttl: ttl, log: log.With("service", "RedisListCache")}, nil
}

func listKey(ownerID string) string {
	return "quizy:quizzes:owner:" + ownerID
}

func versionKey(ownerID string) string {
	return listKey(ownerID) + ":version"
}

// setIfVersion writes the list only while the owner's version still
// matches the one the reader started from. A missing version reads as 0.
var setIfVersion = goredis.NewScript(`
local v = redis.call('GET', KEYS[2])
if (v or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Redis failures degrade to a cache miss; they are logged, never returned.
func (c *RedisListCache) Get(ctx context.Context, ownerID string) ([]models.Quiz, bool) {
	raw, err := c.rdb.Get(ctx, listKey(ownerID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("quiz list cache read failed", "owner_id", ownerID, "error", err)
		return nil, false
	}
	var quizzes []models.Quiz
	if err := json.Unmarshal(raw, &quizzes); err != nil {
		c.log.Warn("quiz list cache entry corrupt", "owner_id", ownerID, "error", err)
		return nil, false
	}
	return quizzes, true
}

// Version returns 0 when the key is missing or unreadable. Set compares
// against the live value, so a wrong 0 only skips the write.
func (c *RedisListCache) Version(ctx context.Context, ownerID string) uint64 {
	v, err := c.rdb.Get(ctx, versionKey(ownerID)).Uint64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		c.log.Warn("quiz list cache version read failed", "owner_id", ownerID, "error", err)
	}
	return v
}

func (c *RedisListCache) Set(ctx context.Context, ownerID string, version uint64, quizzes []models.Quiz) {
	raw, err := json.Marshal(quizzes)
	if err != nil {
		return
	}
	keys := []string{listKey(ownerID), versionKey(ownerID)}
	err = setIfVersion.Run(ctx, c.rdb, keys, strconv.FormatUint(version, 10), raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.log.Warn("quiz list cache write failed", "owner_id", ownerID, "error", err)
	}
}

func (c *RedisListCache) Invalidate(ctx context.Context, ownerID string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(ownerID))
		pipe.Del(ctx, listKey(ownerID))
		return nil
	})
	if err != nil {
		c.log.Warn("quiz list cache invalidation failed", "owner_id", ownerID, "error", err)
	}
}

func (c *RedisListCache) Close() error {
	return c.rdb.Close()
}
