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

// Builder lays out the slot skeleton of a day from its manager-on records.
type Builder struct {
	classifier *classify.Classifier
	scorer     *Scorer
	recorder   Recorder
}

// NewBuilder creates a slot builder. A nil recorder discards events.
func NewBuilder(classifier *classify.Classifier, scorer *Scorer, recorder Recorder) *Builder {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Builder{classifier: classifier, scorer: scorer, recorder: recorder}
}

// Build returns a day with one slot per detected manager-on record (at most two). Only
// windows and empty lists are filled in; candidates are scored by the Assembler.
func (b *Builder) Build(filtered Filtered) *DayModel {
	return b.newRun().build(filtered)
}

func (b *Builder) newRun() *run {
	return &run{builder: b, windows: make(map[models.DutyRecord]models.Window)}
}

// run holds the state of one invocation. The manager window memo lives here rather than
// on the records so concurrent invocations never share it.
type run struct {
	builder *Builder
	windows map[models.DutyRecord]models.Window
}

func (r *run) managerWindow(rec models.DutyRecord) models.Window {
	if w, ok := r.windows[rec]; ok {
		return w
	}
	w := r.builder.classifier.ManagerWindow(rec)
	if !w.Valid() {
		r.builder.recorder.Record(Event{
			Kind:     EventInvalidWindow,
			Role:     models.RoleManagerOn,
			Slot:     -1,
			Employee: rec.Employee,
			Message:  fmt.Sprintf("manager window %s is not ordered, using shift %s", w, rec.Window()),
		})
		w = rec.Window()
	}
	r.windows[rec] = w
	return w
}

func (r *run) build(filtered Filtered) *DayModel {
	managers := filtered[models.RoleManagerOn]
	day := newDayModel(len(managers))
	if day.Empty() {
		return day
	}
	if len(managers) > MaxSlots {
		r.builder.recorder.Record(Event{
			Kind:    EventClampedManager,
			Slot:    -1,
			Message: fmt.Sprintf("%d manager-on records detected, keeping %d slots", len(managers), MaxSlots),
		})
	}

	for _, rec := range managers {
		window := r.managerWindow(rec)
		res := r.builder.scorer.Score(day, Candidate{Record: rec, ManagerWindow: &window}, window, Options{})

		index := res.Slot
		if index < 0 {
			index = r.builder.scorer.slotByStart(rec.Start)
		}
		if index >= day.DetectedShifts {
			index = day.DetectedShifts - 1
		}
		slot := day.Slots[index]

		if slot.Populated() {
			slot.Duplicate = true
			day.Errors = append(day.Errors, DuplicateManagerError)
			r.builder.recorder.Record(Event{
				Kind:     EventDuplicateSlot,
				Role:     models.RoleManagerOn,
				Slot:     index,
				Employee: rec.Employee,
				Score:    res.Score,
				Message:  DuplicateManagerError,
			})
			continue
		}

		resolved := window
		if res.Window != nil {
			resolved = *res.Window
		}
		slot.Window = &resolved
		slot.allocate(models.RoleManagerOn)
		r.builder.recorder.Record(Event{
			Kind:     EventSlotClaimed,
			Role:     models.RoleManagerOn,
			Slot:     index,
			Employee: rec.Employee,
			Score:    res.Score,
			Message:  resolved.String(),
		})
	}

	for _, role := range models.Roles {
		if role == models.RoleManagerOn || len(filtered[role]) == 0 {
			continue
		}
		for _, slot := range day.Slots {
			slot.allocate(role)
		}
	}
	return day
}
