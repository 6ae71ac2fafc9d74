/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package poster

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Election is the part of leadership.Election the poster follows.
type Election interface {
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAware runs the daily post only while this instance is the leader.
type LeaderAware struct {
	daily    *Daily
	election Election
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewLeaderAware wraps daily so it follows election.
func NewLeaderAware(daily *Daily, election Election, logger zerolog.Logger) *LeaderAware {
	return &LeaderAware{
		daily:    daily,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_poster").Logger(),
	}
}

// Run watches leadership changes until ctx is cancelled.
func (la *LeaderAware) Run(ctx context.Context) {
	la.mu.Lock()
	la.ctx = ctx
	la.mu.Unlock()

	if la.election.IsLeader() {
		la.start()
	}

	leaderCh := la.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			la.stop()
			return
		case isLeader := <-leaderCh:
			if isLeader {
				la.logger.Info().Msg("became leader, starting daily post")
				la.start()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping daily post")
				la.stop()
			}
		}
	}
}

// Running reports whether the daily loop is active on this instance.
func (la *LeaderAware) Running() bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.running
}

func (la *LeaderAware) start() {
	la.mu.Lock()
	defer la.mu.Unlock()
	if la.running {
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	la.cancel = cancel
	la.running = true
	la.wg.Add(1)
	go func() {
		defer la.wg.Done()
		if err := la.daily.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			la.logger.Error().Err(err).Msg("daily post loop error")
		}
	}()
}

func (la *LeaderAware) stop() {
	la.mu.Lock()
	if !la.running {
		la.mu.Unlock()
		return
	}
	la.cancel()
	la.running = false
	la.mu.Unlock()
	la.wg.Wait()
}
