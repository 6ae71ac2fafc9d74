/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus spreads report events across instances over NATS or Redis,
// always delivering to local subscribers first.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/events"
)

// Bus is implemented by the in-process bus and the distributed ones.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// New picks NATS when configured, then Redis, then the in-process bus.
func New(cfg *config.Config, nodeID string, logger zerolog.Logger) Bus {
	logger = logger.With().Str("component", "eventbus").Logger()
	switch {
	case cfg.NATSURL != "":
		natsCfg := DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.NATSSubject
		return NewNATSBus(natsCfg, nodeID, logger)
	case cfg.RedisAddr != "":
		redisCfg := DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return NewRedisBus(redisCfg, nodeID, logger)
	default:
		logger.Debug().Msg("using in-process event bus")
		return localBus{events.NewBus()}
	}
}

type localBus struct {
	*events.Bus
}

func (localBus) Close() error { return nil }

// transport carries encoded envelopes between instances.
type transport interface {
	name() string
	topic(eventType events.EventType) string
	publish(ctx context.Context, topic string, data []byte) error
	// subscribe calls deliver for every message on topic until the returned func is called.
	subscribe(topic string, deliver func([]byte)) (func() error, error)
	close() error
}

// Mirror delivers events to local subscribers and copies them to other
// instances through a transport. Envelopes published by this node are ignored
// on receipt. After maxFailures consecutive publish errors the transport is
// abandoned and the bus stays in-process.
type Mirror struct {
	local       *events.Bus
	remote      transport
	nodeID      string
	logger      zerolog.Logger
	maxFailures int

	mu       sync.Mutex
	subs     map[events.EventType]func() error
	failures int
	detached bool
}

func newMirror(remote transport, nodeID string, maxFailures int, logger zerolog.Logger) *Mirror {
	return &Mirror{
		local:       events.NewBus(),
		remote:      remote,
		nodeID:      nodeID,
		logger:      logger,
		maxFailures: maxFailures,
		subs:        make(map[events.EventType]func() error),
		detached:    remote == nil,
	}
}

// Connected reports whether events leave this process.
func (m *Mirror) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.detached
}

// Subscribe registers a local subscriber that also sees events from other instances.
func (m *Mirror) Subscribe(eventType events.EventType) events.Subscriber {
	sub := m.local.Subscribe(eventType)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detached {
		return sub
	}
	if _, ok := m.subs[eventType]; ok {
		return sub
	}
	topic := m.remote.topic(eventType)
	stop, err := m.remote.subscribe(topic, m.receive)
	if err != nil {
		m.logger.Error().Err(err).Str("transport", m.remote.name()).Str("topic", topic).Msg("remote subscribe failed")
		return sub
	}
	m.subs[eventType] = stop
	return sub
}

func (m *Mirror) receive(data []byte) {
	msg, err := unmarshalEnvelope(data)
	if err != nil {
		m.logger.Error().Err(err).Msg("dropping malformed remote event")
		return
	}
	if msg.NodeID == m.nodeID {
		return
	}
	m.local.Publish(msg.EventType, msg.Payload)
	m.logger.Debug().Str("event_type", string(msg.EventType)).Str("source_node", msg.NodeID).Msg("delivered remote event")
}

// Publish sends payload to local subscribers and, while attached, to the transport.
func (m *Mirror) Publish(eventType events.EventType, payload events.Payload) {
	m.local.Publish(eventType, payload)
	if !m.Connected() {
		return
	}

	data, err := marshalEnvelope(eventType, payload, m.nodeID)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = m.remote.publish(ctx, m.remote.topic(eventType), data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.failures = 0
		return
	}
	m.failures++
	m.logger.Error().Err(err).Str("transport", m.remote.name()).Str("event_type", string(eventType)).Msg("remote publish failed")
	if m.maxFailures > 0 && m.failures >= m.maxFailures && !m.detached {
		m.logger.Warn().Int("failures", m.failures).Msg("detaching from remote transport, staying in-process")
		m.detached = true
	}
}

// Unsubscribe removes a local subscriber.
func (m *Mirror) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	m.local.Unsubscribe(eventType, sub)
}

// Close stops remote subscriptions and closes the transport.
func (m *Mirror) Close() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[events.EventType]func() error)
	m.detached = true
	m.mu.Unlock()

	for _, stop := range subs {
		_ = stop()
	}
	if m.remote == nil {
		return nil
	}
	return m.remote.close()
}

// envelope is the wire form of an event shared between instances.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &msg, nil
}
