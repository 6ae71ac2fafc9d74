/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "ridesbot.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus mirrors events over NATS subjects "<prefix>.<event type>". NATS
// reconnects on its own, so publish errors never detach the bus. A failed
// initial connection leaves it in-process.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) *Mirror {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("ridesbot-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-process event bus")
		return newMirror(nil, nodeID, 0, logger)
	}
	logger.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("NATS event bus connected")
	return newMirror(&natsTransport{conn: conn, prefix: cfg.SubjectPrefix}, nodeID, 0, logger)
}

type natsTransport struct {
	conn   *nats.Conn
	prefix string
}

func (t *natsTransport) name() string { return "nats" }

func (t *natsTransport) topic(eventType events.EventType) string {
	return natsSubject(t.prefix, eventType)
}

func natsSubject(prefix string, eventType events.EventType) string {
	return prefix + "." + string(eventType)
}

func (t *natsTransport) publish(_ context.Context, subject string, data []byte) error {
	return t.conn.Publish(subject, data)
}

func (t *natsTransport) subscribe(subject string, deliver func([]byte)) (func() error, error) {
	sub, err := t.conn.Subscribe(subject, func(m *nats.Msg) { deliver(m.Data) })
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (t *natsTransport) close() error {
	return t.conn.Drain()
}
