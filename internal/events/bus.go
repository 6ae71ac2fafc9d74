/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"sync/atomic"
)

// EventType enumerates event categories.
type EventType string

const (
	// EventReportBuilt is published after a report is assembled and stored.
	EventReportBuilt EventType = "report.built"
	// EventRefreshRequested asks the poster to rebuild and post a report.
	EventRefreshRequested EventType = "report.refresh_requested"
	// EventReportPosted is published after a report reached a chat.
	EventReportPosted EventType = "report.posted"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 8

// Payload generic event payload.
type Payload map[string]any

// String returns the payload value for key, or "" when absent or not a string.
func (p Payload) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Bool returns the payload value for key, or false when absent or not a bool.
func (p Payload) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Publisher is the sending half of a bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus is an in-process pubsub. Delivery never blocks: a payload is dropped for a
// subscriber whose queue is full.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventType][]Subscriber
	buffer  int
	dropped atomic.Uint64
}

// NewBus creates an event bus with DefaultBuffer queues.
func NewBus() *Bus {
	return NewBusWithBuffer(DefaultBuffer)
}

// NewBusWithBuffer creates an event bus whose subscribers queue up to buffer payloads.
func NewBusWithBuffer(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{subs: make(map[EventType][]Subscriber), buffer: buffer}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, b.buffer)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to every subscriber of eventType.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// The read lock is held across the sends so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
			b.dropped.Add(1)
		}
	}
}

// Unsubscribe removes and closes the subscriber. Unknown subscribers are ignored.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Dropped reports how many deliveries were skipped because a queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
