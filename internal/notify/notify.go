/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/telemetry"
)

// ErrNotConfigured is returned when a channel is asked to post without credentials.
var ErrNotConfigured = errors.New("notification channel not configured")

// Channel names used in metrics and events.
const (
	ChannelGroupMe  = "groupme"
	ChannelDiscord  = "discord"
	ChannelTelegram = "telegram"
)

const userAgent = "ridesbot/1.0"

// Message is one report rendered for every channel.
type Message struct {
	Text    string
	Discord string // falls back to Text when empty
}

// Targets selects where a message is delivered.
type Targets struct {
	GroupMe       bool
	GroupMeDev    bool
	GroupMeA910   bool
	Discord       bool
	DiscordDebug  bool
	Telegram      bool
	TelegramDebug bool

	// TelegramChatID replies to a specific chat instead of the configured ones.
	TelegramChatID string
}

// Any reports whether at least one destination is selected.
func (t Targets) Any() bool {
	return t.GroupMe || t.GroupMeDev || t.GroupMeA910 ||
		t.Discord || t.DiscordDebug ||
		t.Telegram || t.TelegramDebug || t.TelegramChatID != ""
}

// Dispatcher fans a message out to the selected chat platforms.
type Dispatcher struct {
	GroupMe  *GroupMe
	Discord  *Discord
	Telegram *Telegram
	logger   zerolog.Logger
}

// NewDispatcher builds the platform clients from configuration.
func NewDispatcher(cfg *config.Config, logger zerolog.Logger) *Dispatcher {
	client := telemetry.HTTPClient(15 * time.Second)
	return &Dispatcher{
		GroupMe:  NewGroupMe(cfg.GroupMe, client, logger),
		Discord:  NewDiscord(cfg.Discord, client, logger),
		Telegram: NewTelegram(cfg.Telegram, client, logger),
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Send delivers msg to every selected target. Each target is attempted; the
// returned error joins every failure.
func (d *Dispatcher) Send(ctx context.Context, msg Message, targets Targets) error {
	discordText := msg.Discord
	if discordText == "" {
		discordText = msg.Text
	}

	var errs []error
	try := func(channel, dest string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", channel, dest, err))
			return
		}
		d.logger.Info().Str("channel", channel).Str("destination", dest).Msg("report posted")
	}

	if targets.GroupMe {
		try(ChannelGroupMe, "main", d.GroupMe.Post(ctx, d.GroupMe.cfg.BotID, msg.Text))
	}
	if targets.GroupMeDev {
		try(ChannelGroupMe, "dev", d.GroupMe.Post(ctx, d.GroupMe.cfg.DevBotID, msg.Text))
	}
	if targets.GroupMeA910 {
		try(ChannelGroupMe, "a910", d.GroupMe.Post(ctx, d.GroupMe.cfg.A910BotID, msg.Text))
	}
	if targets.Discord {
		try(ChannelDiscord, "main", d.Discord.Send(ctx, d.Discord.cfg.MainChannelID, discordText))
	}
	if targets.DiscordDebug {
		try(ChannelDiscord, "test", d.Discord.Send(ctx, d.Discord.cfg.TestChannelID, discordText))
	}
	if targets.Telegram {
		try(ChannelTelegram, "main", d.Telegram.Send(ctx, d.Telegram.cfg.MainChatID, msg.Text))
	}
	if targets.TelegramDebug {
		try(ChannelTelegram, "test", d.Telegram.Send(ctx, d.Telegram.cfg.TestChatID, msg.Text))
	}
	if targets.TelegramChatID != "" {
		try(ChannelTelegram, targets.TelegramChatID, d.Telegram.Send(ctx, targets.TelegramChatID, msg.Text))
	}

	return errors.Join(errs...)
}

// postJSON sends body as JSON and treats any non-2xx answer as a failure.
func postJSON(ctx context.Context, client *http.Client, channel, url string, header http.Header, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		telemetry.NotificationsTotal.WithLabelValues(channel, "error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		telemetry.NotificationsTotal.WithLabelValues(channel, "error").Inc()
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	telemetry.NotificationsTotal.WithLabelValues(channel, "ok").Inc()
	return nil
}
