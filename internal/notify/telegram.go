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

// Telegram sends messages through the Bot API.
type Telegram struct {
	cfg    config.TelegramConfig
	client *http.Client
	logger zerolog.Logger
}

// NewTelegram creates a Telegram bot client.
func NewTelegram(cfg config.TelegramConfig, client *http.Client, logger zerolog.Logger) *Telegram {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Telegram{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

type telegramSend struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts text to chatID.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	if t.cfg.Token == "" || chatID == "" {
		return ErrNotConfigured
	}
	endpoint := t.cfg.APIURL + "/bot" + t.cfg.Token + "/sendMessage"
	return postJSON(ctx, t.client, ChannelTelegram, endpoint, nil, telegramSend{ChatID: chatID, Text: text})
}

// IsTestChat reports whether chatID is the configured test chat.
func (t *Telegram) IsTestChat(chatID string) bool {
	return chatID != "" && chatID == t.cfg.TestChatID
}

// Update is the subset of a Telegram webhook update the bot reads.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}
