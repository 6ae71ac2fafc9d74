/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package poster

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/leadership"
)

// Subscriber is the receiving half of an event bus.
type Subscriber interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Refresher answers refresh requests published by the chat callbacks. Every
// instance receives each request; only the leader acts on it.
type Refresher struct {
	poster *Poster
	bus    Subscriber
	gate   leadership.Gate
	logger zerolog.Logger
}

// NewRefresher creates a refresher. A nil gate means this instance always answers.
func NewRefresher(poster *Poster, bus Subscriber, gate leadership.Gate, logger zerolog.Logger) *Refresher {
	if gate == nil {
		gate = leadership.Always{}
	}
	return &Refresher{
		poster: poster,
		bus:    bus,
		gate:   gate,
		logger: logger.With().Str("component", "refresher").Logger(),
	}
}

// Run handles requests until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	sub := r.bus.Subscribe(events.EventRefreshRequested)
	defer r.bus.Unsubscribe(events.EventRefreshRequested, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if !r.gate.IsLeader() {
				r.logger.Debug().Str("source", payload.String("source")).Msg("refresh left to the leader")
				continue
			}
			if err := r.poster.Refresh(ctx, payload); err != nil {
				r.logger.Error().Err(err).Str("source", payload.String("source")).Msg("refresh failed")
			}
		}
	}
}
