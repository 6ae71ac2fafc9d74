package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// Midnight is the zero time of day. Parsers also return it when nothing could be parsed.
const Midnight TimeOfDay = 0

// NewTimeOfDay builds a time of day from a 24-hour hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// TimeOfDayFrom extracts the wall-clock part of t.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// Hour returns the 24-hour hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// AddHours shifts the time by whole hours without wrapping.
func (t TimeOfDay) AddHours(h int) TimeOfDay { return t + TimeOfDay(h*60) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// MarshalJSON renders the time as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the "HH:MM" form produced by MarshalJSON.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return fmt.Errorf("parse time of day %q: %w", s, err)
	}
	*t = TimeOfDayFrom(parsed)
	return nil
}

// Window is a start/end pair within one day.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Valid reports whether the window is ordered within its own day.
func (w Window) Valid() bool {
	return w.Start < w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
