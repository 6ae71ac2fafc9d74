/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
)

// Discord posts channel messages through the REST API.
type Discord struct {
	cfg    config.DiscordConfig
	client *http.Client
	logger zerolog.Logger
}

// NewDiscord creates a Discord REST client.
func NewDiscord(cfg config.DiscordConfig, client *http.Client, logger zerolog.Logger) *Discord {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Discord{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "discord").Logger(),
	}
}

type discordMessage struct {
	Content string `json:"content"`
}

// Send posts text to channelID.
func (d *Discord) Send(ctx context.Context, channelID, text string) error {
	if d.cfg.BotToken == "" || channelID == "" {
		return ErrNotConfigured
	}
	header := http.Header{}
	header.Set("Authorization", "Bot "+d.cfg.BotToken)
	endpoint := d.cfg.APIURL + "/channels/" + url.PathEscape(channelID) + "/messages"
	return postJSON(ctx, d.client, ChannelDiscord, endpoint, header, discordMessage{Content: text})
}

// ChannelRole reports whether channelID is the main or the test channel.
func (d *Discord) ChannelRole(channelID string) (debug bool, ok bool) {
	switch {
	case channelID == "":
		return false, false
	case channelID == d.cfg.TestChannelID:
		return true, true
	case channelID == d.cfg.MainChannelID:
		return false, true
	default:
		return false, false
	}
}
