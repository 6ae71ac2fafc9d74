/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
)

// GroupMe posts through GroupMe bots.
type GroupMe struct {
	cfg    config.GroupMeConfig
	client *http.Client
	logger zerolog.Logger
}

// NewGroupMe creates a GroupMe bot client.
func NewGroupMe(cfg config.GroupMeConfig, client *http.Client, logger zerolog.Logger) *GroupMe {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &GroupMe{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "groupme").Logger(),
	}
}

type groupMePost struct {
	BotID string `json:"bot_id"`
	Text  string `json:"text"`
}

// Post sends text as the bot identified by botID.
func (g *GroupMe) Post(ctx context.Context, botID, text string) error {
	if botID == "" {
		return ErrNotConfigured
	}
	g.logger.Debug().Int("length", len(text)).Msg("posting to groupme")
	return postJSON(ctx, g.client, ChannelGroupMe, g.cfg.APIURL+"/bots/post", nil, groupMePost{BotID: botID, Text: text})
}
