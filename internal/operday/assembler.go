/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package operday

import (
	"fmt"

	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/models"
)

// Assembler turns role-filtered records into a complete DayModel.
type Assembler struct {
	builder  *Builder
	scorer   *Scorer
	recorder Recorder
}

// NewAssembler creates an assembler. A nil recorder discards events.
func NewAssembler(classifier *classify.Classifier, weights Weights, recorder Recorder) *Assembler {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	scorer := NewScorer(weights)
	return &Assembler{
		builder:  NewBuilder(classifier, scorer, recorder),
		scorer:   scorer,
		recorder: recorder,
	}
}

// Scorer exposes the scorer used for every slot decision.
func (a *Assembler) Scorer() *Scorer {
	return a.scorer
}

// Assemble validates the records, builds the slot skeleton and ranks every candidate
// of every role against each populated slot. A malformed record fails the whole call;
// every scheduling ambiguity is represented in the returned model instead.
func (a *Assembler) Assemble(filtered Filtered) (*DayModel, error) {
	for _, role := range models.Roles {
		for i, rec := range filtered[role] {
			if err := rec.Validate(); err != nil {
				return nil, fmt.Errorf("%s record %d: %w", role, i, err)
			}
		}
	}

	r := a.builder.newRun()
	day := r.build(filtered)
	if day.Empty() {
		return day, nil
	}

	for _, role := range models.Roles {
		records := filtered[role]
		if len(records) == 0 {
			continue
		}
		for _, slot := range day.OrderedSlots() {
			if !slot.Populated() {
				continue
			}
			a.rankSlot(r, day, slot, role, records)
		}
	}
	return day, nil
}

func (a *Assembler) rankSlot(r *run, day *DayModel, slot *Slot, role models.Role, records []models.DutyRecord) {
	seen := make(map[models.DutyRecord]struct{}, len(records))
	opts := Options{AllowMultiSlot: true, SlotHint: slot.Index}

	for _, rec := range records {
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}

		cand := Candidate{Record: rec}
		if role == models.RoleManagerOn {
			w := r.managerWindow(rec)
			cand.ManagerWindow = &w
		}
		res := a.scorer.Score(day, cand, *slot.Window, opts)

		if role != models.RoleManagerOn && a.scorer.Disqualified(res) {
			kind := EventDisqualified
			if !res.Assigned() {
				kind = EventUnassignable
			}
			a.recorder.Record(Event{Kind: kind, Role: role, Slot: slot.Index, Employee: rec.Employee, Score: res.Score})
			continue
		}

		slot.add(role, Assignment{Employee: rec.Employee, Score: res.Score})
		a.recorder.Record(Event{Kind: EventScored, Role: role, Slot: slot.Index, Employee: rec.Employee, Score: res.Score})
	}
}
