// Package redis provides a Redis implementation of the LeaderboardCache port.
//
// The ranked board is stored as one JSON document under
// prefix:leaderboard:v1 with a TTL, so a board from a failed re-rank write heals
// on expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Compile-time check that LeaderboardCache implements outbound.LeaderboardCache
var _ outbound.LeaderboardCache = (*LeaderboardCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long a cached board lives before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       5 * time.Minute,
		KeyPrefix: "ledger",
	}
}

// LeaderboardCache is a Redis implementation of the outbound.LeaderboardCache port.
type LeaderboardCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewLeaderboardCache creates a new Redis leaderboard cache.
func NewLeaderboardCache(cfg Config, logger *slog.Logger) (*LeaderboardCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ConfigDefaults().TTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &LeaderboardCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-leaderboard-cache"),
	}, nil
}

// Ping checks the Redis connection.
func (c *LeaderboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}

func (c *LeaderboardCache) key() string {
	if c.keyPrefix == "" {
		return "leaderboard:v1"
	}
	return c.keyPrefix + ":leaderboard:v1"
}

type cachedEntry struct {
	UserID        string          `json:"userId"`
	Score         int64           `json:"score"`
	Badge         string          `json:"badge"`
	Rank          int             `json:"rank"`
	HoldingsValue decimal.Decimal `json:"holdingsValue"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Get returns the cached board. ok is false on a miss.
func (c *LeaderboardCache) Get(ctx context.Context) ([]*entity.LeaderboardEntry, bool, error) {
	data, err := c.client.Get(ctx, c.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	var cached []cachedEntry
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("discarding unreadable cached leaderboard", "error", err)
		return nil, false, nil
	}
	out := make([]*entity.LeaderboardEntry, len(cached))
	for i, e := range cached {
		out[i] = &entity.LeaderboardEntry{
			UserID:        e.UserID,
			Score:         e.Score,
			Badge:         entity.Badge(e.Badge),
			Rank:          e.Rank,
			HoldingsValue: e.HoldingsValue,
			UpdatedAt:     e.UpdatedAt,
		}
	}
	return out, true, nil
}

// Set caches the ranked board.
func (c *LeaderboardCache) Set(ctx context.Context, entries []*entity.LeaderboardEntry) error {
	cached := make([]cachedEntry, len(entries))
	for i, e := range entries {
		cached[i] = cachedEntry{
			UserID:        e.UserID,
			Score:         e.Score,
			Badge:         string(e.Badge),
			Rank:          e.Rank,
			HoldingsValue: e.HoldingsValue,
			UpdatedAt:     e.UpdatedAt,
		}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, c.key(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache leaderboard: %w", err)
	}
	return nil
}

// Invalidate drops the cached board.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate leaderboard: %w", err)
	}
	return nil
}
