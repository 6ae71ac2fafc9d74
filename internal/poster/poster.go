/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/notify"
	"github.com/friendsincode/ridesbot/internal/report"
)

// Builder produces the report for a date.
type Builder interface {
	Build(ctx context.Context, date time.Time, trigger string) (*report.Report, error)
	Today() time.Time
}

// Sender delivers a message to chat targets.
type Sender interface {
	Send(ctx context.Context, msg notify.Message, targets notify.Targets) error
}

// Poster builds a day report and delivers it.
type Poster struct {
	reports Builder
	sender  Sender
	events  events.Publisher
	logger  zerolog.Logger
}

// New creates a poster. pub may be nil.
func New(reports Builder, sender Sender, pub events.Publisher, logger zerolog.Logger) *Poster {
	return &Poster{
		reports: reports,
		sender:  sender,
		events:  pub,
		logger:  logger.With().Str("component", "poster").Logger(),
	}
}

// Post builds the report for date and sends it to targets. An empty day is still
// posted with the "no management report" message.
func (p *Poster) Post(ctx context.Context, date time.Time, targets notify.Targets, trigger string) (*report.Report, error) {
	rep, err := p.reports.Build(ctx, date, trigger)
	if err != nil && !errors.Is(err, report.ErrNoShifts) {
		return nil, fmt.Errorf("build report: %w", err)
	}
	if !targets.Any() {
		return rep, nil
	}

	if err := p.sender.Send(ctx, notify.Message{Text: rep.Message, Discord: rep.DiscordMessage}, targets); err != nil {
		return rep, fmt.Errorf("deliver report: %w", err)
	}

	if p.events != nil {
		p.events.Publish(events.EventReportPosted, events.Payload{
			"report_id": rep.ID,
			"date":      rep.Date,
			"trigger":   trigger,
		})
	}
	p.logger.Info().Str("date", rep.Date).Str("trigger", trigger).Msg("report delivered")
	return rep, nil
}

// Refresh answers a chat "refresh" request described by payload.
func (p *Poster) Refresh(ctx context.Context, payload events.Payload) error {
	targets, ok := RefreshTargets(payload)
	if !ok {
		return fmt.Errorf("refresh request from unknown source %q", payload.String("source"))
	}
	_, err := p.Post(ctx, p.reports.Today(), targets, models.TriggerRefresh)
	return err
}

// RefreshTargets maps a refresh request back to the channel it came from.
func RefreshTargets(payload events.Payload) (notify.Targets, bool) {
	debug := payload.Bool("debug")
	switch payload.String("source") {
	case notify.ChannelGroupMe:
		return notify.Targets{GroupMe: !debug, GroupMeDev: debug}, true
	case notify.ChannelDiscord:
		return notify.Targets{Discord: !debug, DiscordDebug: debug}, true
	case notify.ChannelTelegram:
		chat := payload.String("chat_id")
		if chat == "" {
			return notify.Targets{}, false
		}
		return notify.Targets{TelegramChatID: chat}, true
	default:
		return notify.Targets{}, false
	}
}

// DailyTargets selects every configured main destination.
func DailyTargets(cfg *config.Config) notify.Targets {
	return notify.Targets{
		GroupMe:  cfg.GroupMe.BotID != "",
		Discord:  cfg.Discord.BotToken != "" && cfg.Discord.MainChannelID != "",
		Telegram: cfg.Telegram.Token != "" && cfg.Telegram.MainChatID != "",
	}
}
