/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package operday reconstructs a day's operating structure from duty records: the one or
// two slots the day runs in, and the ranked candidates for every role in each slot.
package operday

import (
	"errors"
	"sort"

	"github.com/friendsincode/ridesbot/internal/models"
)

// MaxSlots is the most operating slots a day can have.
const MaxSlots = 2

// DuplicateManagerError is appended to DayModel.Errors when two manager-on records
// resolve to the same slot.
const DuplicateManagerError = "Multiple managers scheduled for this shift. Result may be inaccurate."

// ErrNoShifts signals a day without any manager-on record: there is nothing to report.
var ErrNoShifts = errors.New("no shifts detected")

// Filtered groups duty records by the role they were selected for.
type Filtered map[models.Role][]models.DutyRecord

// Add appends rec to the role unless an identical record is already present.
func (f Filtered) Add(role models.Role, rec models.DutyRecord) {
	for _, existing := range f[role] {
		if existing == rec {
			return
		}
	}
	f[role] = append(f[role], rec)
}

// Count returns the total number of records across roles.
func (f Filtered) Count() int {
	n := 0
	for _, recs := range f {
		n += len(recs)
	}
	return n
}

// Assignment is one scored candidate in a slot's ranked list.
type Assignment struct {
	Employee string `json:"name"`
	Score    int    `json:"score"`
}

// Slot is one operating period of the day.
type Slot struct {
	Index       int                          `json:"index"`
	Window      *models.Window               `json:"shift_times,omitempty"`
	Duplicate   bool                         `json:"duplicate,omitempty"`
	Assignments map[models.Role][]Assignment `json:"assignments"`
}

func newSlot(index int) *Slot {
	return &Slot{Index: index, Assignments: make(map[models.Role][]Assignment)}
}

// Populated reports whether a manager-on record has claimed the slot.
func (s *Slot) Populated() bool {
	return s.Window != nil
}

// Allocated reports whether the slot carries a list for role, even an empty one.
func (s *Slot) Allocated(role models.Role) bool {
	_, ok := s.Assignments[role]
	return ok
}

// Ranked returns the candidates for role in insertion order.
func (s *Slot) Ranked(role models.Role) []Assignment {
	return s.Assignments[role]
}

// Best returns the highest-scoring candidate for role. Exact ties keep the candidate
// inserted first.
func (s *Slot) Best(role models.Role) (Assignment, bool) {
	list := s.Assignments[role]
	if len(list) == 0 {
		return Assignment{}, false
	}
	best := list[0]
	for _, a := range list[1:] {
		if a.Score > best.Score {
			best = a
		}
	}
	return best, true
}

func (s *Slot) allocate(role models.Role) {
	if _, ok := s.Assignments[role]; !ok {
		s.Assignments[role] = []Assignment{}
	}
}

func (s *Slot) add(role models.Role, a Assignment) {
	s.Assignments[role] = append(s.Assignments[role], a)
}

// DayModel is the reconstructed operating day.
type DayModel struct {
	DetectedShifts int           `json:"detected_shifts"`
	Slots          map[int]*Slot `json:"shifts"`
	Errors         []string      `json:"errors"`
}

func newDayModel(detected int) *DayModel {
	if detected > MaxSlots {
		detected = MaxSlots
	}
	if detected < 0 {
		detected = 0
	}
	day := &DayModel{
		DetectedShifts: detected,
		Slots:          make(map[int]*Slot, detected),
		Errors:         []string{},
	}
	for i := 0; i < detected; i++ {
		day.Slots[i] = newSlot(i)
	}
	return day
}

// Empty reports the "no report" condition.
func (d *DayModel) Empty() bool {
	return d == nil || d.DetectedShifts == 0
}

// OrderedSlots returns the slots sorted by index.
func (d *DayModel) OrderedSlots() []*Slot {
	if d == nil {
		return nil
	}
	slots := make([]*Slot, 0, len(d.Slots))
	for _, s := range d.Slots {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Index < slots[j].Index })
	return slots
}

// HasErrors reports whether any conflict was recorded.
func (d *DayModel) HasErrors() bool {
	return d != nil && len(d.Errors) > 0
}
