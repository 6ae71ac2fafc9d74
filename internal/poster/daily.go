/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package poster

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/notify"
)

// Daily posts the day's report once a day at a fixed wall-clock time.
type Daily struct {
	poster  *Poster
	targets notify.Targets
	hour    int
	minute  int
	loc     *time.Location
	now     func() time.Time
	logger  zerolog.Logger
}

// NewDaily schedules poster at at ("HH:MM") in loc.
func NewDaily(poster *Poster, at string, loc *time.Location, targets notify.Targets, logger zerolog.Logger) (*Daily, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("daily post time %q: %w", at, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Daily{
		poster:  poster,
		targets: targets,
		hour:    t.Hour(),
		minute:  t.Minute(),
		loc:     loc,
		now:     time.Now,
		logger:  logger.With().Str("component", "daily_post").Logger(),
	}, nil
}

// Next returns the first post time strictly after now.
func (d *Daily) Next(now time.Time) time.Time {
	now = now.In(d.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Run posts every day until ctx is cancelled.
func (d *Daily) Run(ctx context.Context) error {
	for {
		now := d.now()
		next := d.Next(now)
		d.logger.Info().Time("next_post", next).Msg("daily post scheduled")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		day := time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, d.loc)
		if _, err := d.poster.Post(ctx, day, d.targets, models.TriggerSchedule); err != nil {
			d.logger.Error().Err(err).Msg("daily post failed")
		}
	}
}
