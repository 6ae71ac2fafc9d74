/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package operday

import (
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/models"
)

// EventKind classifies a diagnostic event emitted while assembling a day.
type EventKind string

const (
	EventSlotClaimed    EventKind = "slot_claimed"
	EventDuplicateSlot  EventKind = "duplicate_slot"
	EventScored         EventKind = "scored"
	EventDisqualified   EventKind = "disqualified"
	EventUnassignable   EventKind = "unassignable"
	EventInvalidWindow  EventKind = "invalid_window"
	EventClampedManager EventKind = "clamped_manager"
)

// Event is one diagnostic observation. Slot is -1 when no slot applies.
type Event struct {
	Kind     EventKind   `json:"kind"`
	Role     models.Role `json:"role,omitempty"`
	Slot     int         `json:"slot"`
	Employee string      `json:"employee,omitempty"`
	Score    int         `json:"score"`
	Message  string      `json:"message,omitempty"`
}

// Recorder receives diagnostic events from the engine.
type Recorder interface {
	Record(Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(Event)

// Record calls f(ev).
func (f RecorderFunc) Record(ev Event) { f(ev) }

// NopRecorder discards every event.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(Event) {}

// LogRecorder writes events to a zerolog logger at debug level, warnings for conflicts.
type LogRecorder struct {
	logger zerolog.Logger
}

// NewLogRecorder wraps logger.
func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.With().Str("component", "operday").Logger()}
}

// Record logs ev.
func (r *LogRecorder) Record(ev Event) {
	var e *zerolog.Event
	switch ev.Kind {
	case EventDuplicateSlot, EventInvalidWindow:
		e = r.logger.Warn()
	default:
		e = r.logger.Debug()
	}
	e = e.Str("kind", string(ev.Kind)).Int("slot", ev.Slot).Int("score", ev.Score)
	if ev.Role != "" {
		e = e.Str("role", string(ev.Role))
	}
	if ev.Employee != "" {
		e = e.Str("employee", ev.Employee)
	}
	e.Msg(ev.Message)
}

// MultiRecorder fans every event out to each recorder in order.
type MultiRecorder []Recorder

// Record forwards ev.
func (m MultiRecorder) Record(ev Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ev)
		}
	}
}
