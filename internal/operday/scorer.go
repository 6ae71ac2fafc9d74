/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package operday

import (
	"github.com/friendsincode/ridesbot/internal/models"
)

// Weights tune the slot scoring heuristic. Only their relative ordering matters:
// a correct match must outscore a corrected mismatch, which must outscore a disqualified
// candidate.
type Weights struct {
	MatchBonus      int `json:"match_bonus"`
	HourPenalty     int `json:"hour_penalty"`
	SingleSlotScore int `json:"single_slot_score"`
	ToleranceHours  int `json:"tolerance_hours"`
	AMCutoffHour    int `json:"am_cutoff_hour"`
	EndCutoffHour   int `json:"end_cutoff_hour"`
	DisqualifyAt    int `json:"disqualify_at"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		MatchBonus:      200,
		HourPenalty:     10,
		SingleSlotScore: 100,
		ToleranceHours:  2,
		AMCutoffHour:    12,
		EndCutoffHour:   17,
		DisqualifyAt:    -100,
	}
}

// Candidate is a record offered to the scorer. ManagerWindow is set for manager-on
// candidates and nil otherwise.
type Candidate struct {
	Record        models.DutyRecord
	ManagerWindow *models.Window
}

// Options control how a single scoring call behaves.
type Options struct {
	// AllowMultiSlot evaluates every check for the slot hint instead of stopping at the
	// first assignment.
	AllowMultiSlot bool
	SlotHint       int
}

// Result is the outcome of scoring one candidate. Slot is -1 when nothing could be
// assigned, in which case Window is nil and Score is meaningless.
type Result struct {
	Slot   int
	Window *models.Window
	Score  int
	Record models.DutyRecord
}

// Assigned reports whether the result names a real slot.
func (r Result) Assigned() bool {
	return r.Slot >= 0
}

// Scorer decides which slot a candidate belongs to and how well it fits there.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score fits cand against the target window of day.
func (s *Scorer) Score(day *DayModel, cand Candidate, target models.Window, opts Options) Result {
	w := s.weights
	rec := cand.Record

	if day != nil && day.DetectedShifts == 1 {
		t := target
		return Result{Slot: 0, Window: &t, Score: w.SingleSlotScore, Record: rec}
	}

	res := Result{Slot: -1, Record: rec}
	if mw := cand.ManagerWindow; mw != nil {
		res.Score -= hourDistance(mw.Start, target.Start) * w.HourPenalty
		res.Score -= hourDistance(mw.End, target.End) * w.HourPenalty
	}

	assigned := false
	open := func() bool {
		if opts.AllowMultiSlot {
			return opts.SlotHint == 0 || opts.SlotHint == 1
		}
		return !assigned
	}
	assign := func(slot int, window models.Window, delta int) {
		res.Slot = slot
		res.Window = &window
		res.Score += delta
		assigned = true
	}

	startDist := hourDistance(rec.Start, target.Start)
	endDist := hourDistance(rec.End, target.End)
	startMatched := startDist <= w.ToleranceHours
	endMatched := endDist <= w.ToleranceHours

	if startMatched {
		assign(s.slotByStart(target.Start), target, w.MatchBonus)
	}
	if endMatched && open() {
		assign(s.slotByEnd(target.End), target, w.MatchBonus)
	}
	if !startMatched && open() {
		assign(s.slotByStart(rec.Start), rec.Window(), -startDist*w.HourPenalty)
	}
	if !endMatched && open() {
		assign(s.slotByEnd(rec.End), rec.Window(), -endDist*w.HourPenalty)
	}

	if !assigned {
		return Result{Slot: -1, Record: rec}
	}
	return res
}

// Disqualified reports whether a non-manager result should be dropped from its slot.
func (s *Scorer) Disqualified(res Result) bool {
	return !res.Assigned() || res.Score <= s.weights.DisqualifyAt
}

func (s *Scorer) slotByStart(t models.TimeOfDay) int {
	if t.Hour() < s.weights.AMCutoffHour {
		return 0
	}
	return 1
}

func (s *Scorer) slotByEnd(t models.TimeOfDay) int {
	if t.Hour() <= s.weights.EndCutoffHour {
		return 0
	}
	return 1
}

func hourDistance(a, b models.TimeOfDay) int {
	d := a.Hour() - b.Hour()
	if d < 0 {
		return -d
	}
	return d
}
