package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

// RedisClient caches operator-facing progress snapshots so the status API
// can answer without hitting MySQL on every request.
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	cfg    *config.RedisConfig
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client.
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		cfg:    cfg,
		ttl:    ttl,
	}, nil
}

// Close closes the Redis connection.
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health.
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// StoreProgress caches the latest progress snapshot for a series. Each
// symbol gets its own key so readers can fetch individual symbols cheaply.
func (rc *RedisClient) StoreProgress(ctx context.Context, seriesType string, entries []models.ProgressEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := rc.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal progress for %s: %w", e.Symbol, err)
		}
		pipe.Set(ctx, progressKey(seriesType, e.Symbol), data, rc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store progress snapshot: %w", err)
	}

	rc.logger.WithField("entries", len(entries)).Debug("Progress snapshot cached")
	return nil
}

// GetProgress returns the cached snapshot entries for the given symbols.
// Symbols with no cached entry are simply absent, so callers fall back to
// the watermark store for them.
func (rc *RedisClient) GetProgress(ctx context.Context, seriesType string, symbols []string) ([]models.ProgressEntry, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = progressKey(seriesType, s)
	}

	values, err := rc.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress snapshot: %w", err)
	}

	var entries []models.ProgressEntry
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e models.ProgressEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			rc.logger.WithError(err).Warn("Dropping corrupt snapshot entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func progressKey(seriesType, symbol string) string {
	return fmt.Sprintf("progress:%s:%s", seriesType, symbol)
}
