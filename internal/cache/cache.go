/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps rendered reports in Redis so API reads within the TTL
// skip the W2W scrape.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/telemetry"
)

// DefaultReportTTL bounds how stale a cached report may be.
const DefaultReportTTL = 10 * time.Minute

// KeyReport is the key prefix for reports, followed by the YYYY-MM-DD date.
const KeyReport = "ridesbot:cache:report:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReportTTL     time.Duration

	// DisableOnError pauses Redis use for RetryAfter after a failed operation.
	DisableOnError bool
	RetryAfter     time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ReportTTL:      DefaultReportTTL,
		DisableOnError: true,
		RetryAfter:     time.Minute,
	}
}

// backend is the part of the Redis client the cache uses.
type backend interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// Cache is a Redis report cache. Failures trip a breaker; while it is open every
// lookup misses and writes are skipped, so callers fall back to building reports.
type Cache struct {
	client backend
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu        sync.Mutex
	trippedAt time.Time
}

// New creates a cache. An empty or unreachable address yields a cache that always misses.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.RedisAddr == "" {
		return newCache(nil, cfg, logger), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return newCache(nil, cfg, logger), nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return newCache(client, cfg, logger), nil
}

func newCache(client backend, cfg Config, logger zerolog.Logger) *Cache {
	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = DefaultReportTTL
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Minute
	}
	return &Cache{client: client, logger: logger, config: cfg, now: time.Now}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable reports whether Redis is connected and the breaker is closed or due a retry.
func (c *Cache) IsAvailable() bool {
	if c.client == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trippedAt.IsZero() || c.now().Sub(c.trippedAt) >= c.config.RetryAfter
}

// observe updates the breaker after a Redis call. redis.Nil is a plain miss.
func (c *Cache) observe(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		c.mu.Lock()
		if !c.trippedAt.IsZero() {
			c.trippedAt = time.Time{}
			c.logger.Info().Msg("Redis cache recovered")
		}
		c.mu.Unlock()
		return
	}

	telemetry.CacheOperationsTotal.WithLabelValues("error").Inc()
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")
	if !c.config.DisableOnError {
		return
	}
	c.mu.Lock()
	c.trippedAt = c.now()
	c.mu.Unlock()
	c.logger.Warn().Dur("retry_after", c.config.RetryAfter).Msg("pausing cache after Redis error")
}

// CachedReport is a rendered report as stored in Redis.
type CachedReport struct {
	Date           string          `json:"date"`
	DetectedShifts int             `json:"detected_shifts"`
	Message        string          `json:"message"`
	DiscordMessage string          `json:"discord_message"`
	Day            json.RawMessage `json:"day"`
	BuiltAt        time.Time       `json:"built_at"`
}

func reportKey(date string) string {
	return KeyReport + date
}

// GetReport returns the cached report for date.
func (c *Cache) GetReport(ctx context.Context, date string) (*CachedReport, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, reportKey(date)).Bytes()
	c.observe(err, "get")
	if err != nil {
		telemetry.CacheOperationsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	var report CachedReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Debug().Err(err).Str("date", date).Msg("discarding unreadable cached report")
		telemetry.CacheOperationsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	telemetry.CacheOperationsTotal.WithLabelValues("hit").Inc()
	return &report, true
}

// SetReport stores report under its date for the configured TTL.
func (c *Cache) SetReport(ctx context.Context, report *CachedReport) error {
	if !c.IsAvailable() {
		return nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal cached report: %w", err)
	}
	err = c.client.Set(ctx, reportKey(report.Date), data, c.config.ReportTTL).Err()
	c.observe(err, "set")
	return err
}

// InvalidateReport drops the cached report for date.
func (c *Cache) InvalidateReport(ctx context.Context, date string) error {
	if !c.IsAvailable() {
		return nil
	}
	err := c.client.Del(ctx, reportKey(date)).Err()
	c.observe(err, "delete")
	return err
}

// FlushAll removes every cached report.
func (c *Cache) FlushAll(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Warn().Msg("flushing all cached reports")

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyReport+"*", 100).Result()
		c.observe(err, "scan")
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			err := c.client.Del(ctx, keys...).Err()
			c.observe(err, "delete_batch")
			if err != nil {
				return err
			}
		}
		if cursor = next; cursor == 0 {
			return nil
		}
	}
}
