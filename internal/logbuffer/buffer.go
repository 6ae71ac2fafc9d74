/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log entries in memory so engine diagnostics
// can be inspected over HTTP without shell access.
package logbuffer

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultCapacity = 2000

// Entry is one captured log line. Engine events carry their kind and employee
// as top-level fields so the diagnostics view can filter on them.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message,omitempty"`
	Component string         `json:"component,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Employee  string         `json:"employee,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of entries, safe for concurrent use.
type Buffer struct {
	mu   sync.RWMutex
	ring []Entry
	next int
	full bool
}

// New returns a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{ring: make([]Entry, capacity)}
}

// Add stores entry, evicting the oldest when full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	b.ring[b.next] = entry
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
}

func (b *Buffer) lenLocked() int {
	if b.full {
		return len(b.ring)
	}
	return b.next
}

// at returns the i-th oldest entry. Callers hold the lock.
func (b *Buffer) at(i int) Entry {
	if !b.full {
		return b.ring[i]
	}
	return b.ring[(b.next+i)%len(b.ring)]
}

// GetAll returns every entry, oldest first.
func (b *Buffer) GetAll() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.lenLocked()
	out := make([]Entry, n)
	for i := range out {
		out[i] = b.at(i)
	}
	return out
}

// QueryParams filter entries. Zero values match everything.
type QueryParams struct {
	Level      string
	Component  string
	Kind       string
	Employee   string // case-insensitive
	Search     string // case-insensitive substring of message, component or any string field
	Since      time.Time
	Limit      int
	Descending bool
}

func (q QueryParams) match(e Entry) bool {
	switch {
	case q.Level != "" && e.Level != q.Level:
		return false
	case q.Component != "" && e.Component != q.Component:
		return false
	case q.Kind != "" && e.Kind != q.Kind:
		return false
	case q.Employee != "" && !strings.EqualFold(e.Employee, q.Employee):
		return false
	case !q.Since.IsZero() && e.Timestamp.Before(q.Since):
		return false
	}
	return q.Search == "" || e.contains(strings.ToLower(q.Search))
}

func (e Entry) contains(needle string) bool {
	for _, s := range []string{e.Message, e.Component, e.Kind, e.Employee} {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Query returns matching entries. Limit keeps the newest matches regardless of order.
func (b *Buffer) Query(q QueryParams) []Entry {
	b.mu.RLock()
	var out []Entry
	for i := b.lenLocked() - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		if e := b.at(i); q.match(e) {
			out = append(out, e)
		}
	}
	b.mu.RUnlock()

	if !q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Components lists the distinct components present, sorted.
func (b *Buffer) Components() []string {
	seen := map[string]struct{}{}
	for _, e := range b.GetAll() {
		if e.Component != "" {
			seen[e.Component] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Stats summarises buffer contents.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	KindCount  map[string]int `json:"kind_count"`
}

func (b *Buffer) Stats() Stats {
	entries := b.GetAll()
	stats := Stats{
		Capacity:   len(b.ring),
		Count:      len(entries),
		LevelCount: map[string]int{},
		KindCount:  map[string]int{},
	}
	for _, e := range entries {
		stats.LevelCount[e.Level]++
		if e.Kind != "" {
			stats.KindCount[e.Kind]++
		}
	}
	return stats
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.next, b.full = 0, false
	b.mu.Unlock()
}

// Writer is a zerolog output that copies JSON events into a Buffer.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter returns a writer feeding buffer and then fallback, if any.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write captures p when it decodes as a JSON object and always forwards it to the fallback.
func (w *Writer) Write(p []byte) (int, error) {
	var fields map[string]any
	if json.Unmarshal(p, &fields) == nil {
		w.buffer.Add(decode(fields))
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func decode(fields map[string]any) Entry {
	take := func(key string) string {
		s, _ := fields[key].(string)
		if s != "" {
			delete(fields, key)
		}
		return s
	}

	e := Entry{
		Timestamp: time.Now(),
		Level:     take(zerolog.LevelFieldName),
		Message:   take(zerolog.MessageFieldName),
		Component: take("component"),
		Kind:      take("kind"),
		Employee:  take("employee"),
	}
	switch ts := fields[zerolog.TimestampFieldName].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = t
		}
	case float64:
		e.Timestamp = time.Unix(int64(ts), 0)
	}
	delete(fields, zerolog.TimestampFieldName)

	if len(fields) > 0 {
		e.Fields = fields
	}
	return e
}
