/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/events"
)

// Discord gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Guild messages, direct messages and message content.
const gatewayIntents = 1<<9 | 1<<12 | 1<<15

const (
	gatewayReadLimit   = 1 << 20
	gatewayMaxBackoff  = 2 * time.Minute
	gatewayBaseBackoff = 2 * time.Second
)

var errGatewayReconnect = errors.New("gateway asked to reconnect")

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type gatewayHello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type gatewayIdentify struct {
	Token      string            `json:"token"`
	Intents    int               `json:"intents"`
	Properties map[string]string `json:"properties"`
}

type gatewayMessage struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"author"`
}

// Listener watches Discord channels for chat commands over the gateway.
type Listener struct {
	cfg     config.DiscordConfig
	discord *Discord
	events  events.Publisher
	logger  zerolog.Logger
	seq     atomic.Int64
}

// NewListener creates a gateway listener that publishes refresh requests to pub.
func NewListener(cfg config.DiscordConfig, discord *Discord, pub events.Publisher, logger zerolog.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		discord: discord,
		events:  pub,
		logger:  logger.With().Str("component", "discord_gateway").Logger(),
	}
}

// Run keeps a gateway session open until ctx is cancelled, reconnecting with backoff.
func (l *Listener) Run(ctx context.Context) error {
	if l.cfg.BotToken == "" {
		return ErrNotConfigured
	}
	backoff := gatewayBaseBackoff
	for {
		started := time.Now()
		err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > gatewayMaxBackoff {
			backoff = gatewayBaseBackoff
		}
		l.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("gateway session ended")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, gatewayMaxBackoff)
	}
}

func (l *Listener) session(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, l.cfg.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(gatewayReadLimit)

	var hello gatewayPayload
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var h gatewayHello
	if err := json.Unmarshal(hello.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid hello payload")
	}

	identify, _ := json.Marshal(gatewayIdentify{
		Token:   l.cfg.BotToken,
		Intents: gatewayIntents,
		Properties: map[string]string{
			"os":      "linux",
			"browser": "ridesbot",
			"device":  "ridesbot",
		},
	})
	if err := wsjson.Write(ctx, conn, gatewayPayload{Op: opIdentify, D: identify}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	go l.heartbeat(ctx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond)

	l.logger.Info().Msg("gateway connected")
	for {
		var p gatewayPayload
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if p.S != nil {
			l.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			if p.T == "MESSAGE_CREATE" {
				var msg gatewayMessage
				if err := json.Unmarshal(p.D, &msg); err != nil {
					l.logger.Debug().Err(err).Msg("undecodable message")
					continue
				}
				l.HandleMessage(msg.ChannelID, msg.Content, msg.Author.Bot)
			}
		case opHeartbeat:
			if err := l.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		case opReconnect, opInvalidSession:
			return errGatewayReconnect
		case opHeartbeatAck:
		}
	}
}

func (l *Listener) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.sendHeartbeat(ctx, conn); err != nil {
				l.logger.Debug().Err(err).Msg("heartbeat failed")
				return
			}
		}
	}
}

func (l *Listener) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	d := json.RawMessage("null")
	if seq := l.seq.Load(); seq > 0 {
		d = json.RawMessage(fmt.Sprintf("%d", seq))
	}
	return wsjson.Write(ctx, conn, gatewayPayload{Op: opHeartbeat, D: d})
}

// HandleMessage reacts to a chat message. "refresh" in the main or test channel
// requests a new report for that channel.
func (l *Listener) HandleMessage(channelID, content string, fromBot bool) {
	if fromBot {
		return
	}
	switch strings.ToLower(strings.TrimSpace(content)) {
	case "refresh":
		debug, ok := l.discord.ChannelRole(channelID)
		if !ok {
			return
		}
		l.logger.Info().Str("channel_id", channelID).Bool("debug", debug).Msg("refresh requested")
		l.events.Publish(events.EventRefreshRequested, events.Payload{
			"source":     ChannelDiscord,
			"channel_id": channelID,
			"debug":      debug,
		})
	case "ping":
		l.logger.Info().Str("channel_id", channelID).Msg("pong")
	}
}
