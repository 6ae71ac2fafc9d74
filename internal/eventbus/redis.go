/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/events"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	ChannelPrefix string
	DialTimeout   time.Duration
	MaxFailures   int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "ridesbot:events:",
		DialTimeout:   5 * time.Second,
		MaxFailures:   5,
	}
}

// NewRedisBus mirrors events over Redis pub/sub channels "<prefix><event type>".
// An unreachable server leaves the bus in-process.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *Mirror {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis connection failed, using in-process event bus")
		_ = client.Close()
		return newMirror(nil, nodeID, cfg.MaxFailures, logger)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
	return newMirror(&redisTransport{client: client, prefix: cfg.ChannelPrefix, logger: logger}, nodeID, cfg.MaxFailures, logger)
}

type redisTransport struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func (t *redisTransport) name() string { return "redis" }

func (t *redisTransport) topic(eventType events.EventType) string {
	return t.prefix + string(eventType)
}

func (t *redisTransport) publish(ctx context.Context, channel string, data []byte) error {
	return t.client.Publish(ctx, channel, data).Err()
}

// subscribe pumps the channel in its own goroutine. Closing the PubSub closes
// its Go channel, which ends the pump.
func (t *redisTransport) subscribe(channel string, deliver func([]byte)) (func() error, error) {
	pubsub := t.client.Subscribe(context.Background(), channel)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for m := range pubsub.Channel() {
			deliver([]byte(m.Payload))
		}
		t.logger.Debug().Str("channel", channel).Msg("Redis subscription closed")
	}()
	return pubsub.Close, nil
}

func (t *redisTransport) close() error {
	t.wg.Wait()
	return t.client.Close()
}
