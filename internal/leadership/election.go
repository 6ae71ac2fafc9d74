/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/telemetry"
)

const (
	defaultElectionKey = "ridesbot:leader:poster"

	// The leader must renew before the lease runs out.
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// Gate reports whether this instance may perform singleton work such as the daily post.
type Gate interface {
	IsLeader() bool
}

// Always is the gate of a single-instance deployment.
type Always struct{}

// IsLeader implements Gate.
func (Always) IsLeader() bool { return true }

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the leader's instance id.
	ElectionKey     string
	LeaseDuration   time.Duration
	RenewalInterval time.Duration
	RetryInterval   time.Duration
	InstanceID      string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.NewString(),
	}
}

// lock is the lease the election campaigns for.
type lock interface {
	// acquire takes or renews the lease for owner.
	acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	release(ctx context.Context, owner string) error
	holder(ctx context.Context) (string, error)
	close() error
}

// Election manages distributed leader election using a Redis lease.
type Election struct {
	lock       lock
	logger     zerolog.Logger
	config     ElectionConfig
	instanceID string

	isLeader   atomic.Bool
	cancelFunc context.CancelFunc
	stopOnce   sync.Once
	done       chan struct{}
	leaderCh   chan bool
}

// NewElection connects to Redis and creates an election manager.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	e := newElection(config, &redisLock{client: client, key: keyOrDefault(config.ElectionKey)}, logger)
	e.logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", e.instanceID).
		Msg("connected to Redis for leader election")
	return e, nil
}

func keyOrDefault(key string) string {
	if key == "" {
		return defaultElectionKey
	}
	return key
}

func newElection(config ElectionConfig, l lock, logger zerolog.Logger) *Election {
	config.ElectionKey = keyOrDefault(config.ElectionKey)
	if config.LeaseDuration == 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RenewalInterval == 0 {
		config.RenewalInterval = defaultRenewalInterval
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	return &Election{
		lock:       l,
		logger:     logger.With().Str("component", "leader_election").Logger(),
		config:     config,
		instanceID: config.InstanceID,
		done:       make(chan struct{}),
		leaderCh:   make(chan bool, 1),
	}
}

// InstanceID returns the id this instance campaigns with.
func (e *Election) InstanceID() string {
	return e.instanceID
}

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	e.logger.Info().
		Str("instance_id", e.instanceID).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")

	go e.campaignLoop(ctx)
}

// Stop ends the campaign, releases the lease if held and closes the Redis client.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.logger.Info().Msg("stopping leader election")
		if e.cancelFunc != nil {
			e.cancelFunc()
			<-e.done
		}

		if e.isLeader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rerr := e.lock.release(ctx, e.instanceID); rerr != nil {
				e.logger.Error().Err(rerr).Msg("failed to release leadership lock")
			} else {
				e.logger.Info().Msg("released leadership lock")
			}
			e.updateLeadershipStatus(false)
		}
		err = e.lock.close()
	})
	return err
}

// IsLeader implements Gate.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh receives leadership changes. Changes are dropped while the channel is full.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the current leader instance id, or "" when there is none.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	return e.lock.holder(ctx)
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer close(e.done)

	e.attemptLeadership(ctx)
	for {
		interval := e.config.RetryInterval
		if e.isLeader.Load() {
			interval = e.config.RenewalInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.attemptLeadership(ctx)
		}
	}
}

func (e *Election) attemptLeadership(ctx context.Context) {
	acquired, err := e.lock.acquire(ctx, e.instanceID, e.config.LeaseDuration)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("failed to acquire leadership lock")
		}
		e.updateLeadershipStatus(false)
		return
	}

	switch {
	case acquired && !e.isLeader.Load():
		e.logger.Info().Str("instance_id", e.instanceID).Msg("acquired leadership")
	case !acquired && e.isLeader.Load():
		e.logger.Warn().Str("instance_id", e.instanceID).Msg("lost leadership")
	}
	e.updateLeadershipStatus(acquired)
}

func (e *Election) updateLeadershipStatus(isLeader bool) {
	if e.isLeader.Swap(isLeader) == isLeader {
		return
	}

	if isLeader {
		telemetry.LeaderStatus.Set(1)
	} else {
		telemetry.LeaderStatus.Set(0)
	}

	select {
	case e.leaderCh <- isLeader:
	default:
	}
}

// renewScript extends the lease only while owner still holds it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type redisLock struct {
	client *redis.Client
	key    string
}

func (r *redisLock) acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, r.client, []string{r.key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	return renewed == 1, nil
}

func (r *redisLock) release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key}, owner).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (r *redisLock) holder(ctx context.Context) (string, error) {
	id, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (r *redisLock) close() error {
	return r.client.Close()
}
