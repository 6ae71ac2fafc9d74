/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package operday

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/models"
)

type eventLog struct {
	events []Event
}

func (l *eventLog) Record(ev Event) { l.events = append(l.events, ev) }

func (l *eventLog) count(kind EventKind) int {
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestAssembler(rec Recorder) *Assembler {
	return NewAssembler(classify.New(), DefaultWeights(), rec)
}

var (
	morningManager = duty("Alex", tod(8, 0), tod(15, 0), "manager taking calls 8-3")
	eveningManager = duty("Blair", tod(15, 0), tod(22, 0), "manager taking calls 3-10")
	morningSecond  = duty("Casey", tod(8, 0), tod(15, 0), "2nd mgr")
	eveningSecond  = duty("Drew", tod(15, 0), tod(22, 0), "2nd mgr")
)

func TestAssembleTwoSlotDay(t *testing.T) {
	log := &eventLog{}
	a := newTestAssembler(log)

	day, err := a.Assemble(Filtered{
		models.RoleManagerOn:     {morningManager, eveningManager},
		models.RoleSecondManager: {morningSecond, eveningSecond},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if day.DetectedShifts != 2 || len(day.Slots) != 2 {
		t.Fatalf("detected %d shifts with %d slots, want 2 and 2", day.DetectedShifts, len(day.Slots))
	}
	if day.HasErrors() {
		t.Fatalf("unexpected errors: %v", day.Errors)
	}

	first, second := day.Slots[0], day.Slots[1]
	if first.Window == nil || *first.Window != window(tod(8, 0), tod(15, 0)) {
		t.Fatalf("slot 0 window = %v", first.Window)
	}
	if second.Window == nil || *second.Window != window(tod(15, 0), tod(22, 0)) {
		t.Fatalf("slot 1 window = %v", second.Window)
	}

	if best, _ := first.Best(models.RoleManagerOn); best.Employee != "Alex" {
		t.Fatalf("slot 0 manager = %q, want Alex", best.Employee)
	}
	if best, _ := second.Best(models.RoleManagerOn); best.Employee != "Blair" {
		t.Fatalf("slot 1 manager = %q, want Blair", best.Employee)
	}

	// Managers are never dropped, so both appear in each slot's ranking.
	if got := len(first.Ranked(models.RoleManagerOn)); got != 2 {
		t.Fatalf("slot 0 manager candidates = %d, want 2", got)
	}

	if got := first.Ranked(models.RoleSecondManager); len(got) != 1 || got[0].Employee != "Casey" {
		t.Fatalf("slot 0 second managers = %+v, want only Casey", got)
	}
	if got := second.Ranked(models.RoleSecondManager); len(got) != 1 || got[0].Employee != "Drew" {
		t.Fatalf("slot 1 second managers = %+v, want only Drew", got)
	}
	if log.count(EventDisqualified) != 2 {
		t.Fatalf("disqualified events = %d, want 2", log.count(EventDisqualified))
	}

	if first.Allocated(models.RoleNorthCoord) {
		t.Fatal("north coord list should not exist without north coord records")
	}
}

func TestAssembleDuplicateManagers(t *testing.T) {
	log := &eventLog{}
	a := newTestAssembler(log)
	other := duty("Jordan", tod(8, 0), tod(15, 0), "manager taking calls 8-3")

	day, err := a.Assemble(Filtered{
		models.RoleManagerOn:     {morningManager, other},
		models.RoleSecondManager: {morningSecond},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(day.Slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(day.Slots))
	}
	if !day.Slots[0].Duplicate {
		t.Fatal("slot 0 should be marked duplicate")
	}
	if len(day.Errors) != 1 || day.Errors[0] != DuplicateManagerError {
		t.Fatalf("errors = %v", day.Errors)
	}
	if day.Slots[1].Populated() {
		t.Fatal("slot 1 should stay unpopulated")
	}
	if !day.Slots[1].Allocated(models.RoleSecondManager) {
		t.Fatal("role lists are allocated on every slot")
	}
	if got := day.Slots[1].Ranked(models.RoleSecondManager); len(got) != 0 {
		t.Fatalf("unpopulated slot ranked %+v", got)
	}
	if log.count(EventDuplicateSlot) != 1 {
		t.Fatal("expected a duplicate slot event")
	}

	// The first manager keeps the slot and wins the exact tie.
	if best, _ := day.Slots[0].Best(models.RoleManagerOn); best.Employee != "Alex" {
		t.Fatalf("best manager = %q, want Alex", best.Employee)
	}
}

func TestAssembleClampsToTwoSlots(t *testing.T) {
	log := &eventLog{}
	a := newTestAssembler(log)
	third := duty("Jordan", tod(16, 0), tod(22, 0), "manager taking calls 4-10")

	day, err := a.Assemble(Filtered{models.RoleManagerOn: {morningManager, eveningManager, third}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if day.DetectedShifts != 2 || len(day.Slots) != 2 {
		t.Fatalf("detected %d with %d slots", day.DetectedShifts, len(day.Slots))
	}
	if !day.Slots[1].Duplicate {
		t.Fatal("third manager should collide with the evening slot")
	}
	if log.count(EventClampedManager) != 1 {
		t.Fatal("expected a clamp event")
	}
}

func TestAssembleSingleSlotKeepsEveryone(t *testing.T) {
	a := newTestAssembler(nil)

	day, err := a.Assemble(Filtered{
		models.RoleManagerOn:     {morningManager},
		models.RoleSecondManager: {morningSecond, eveningSecond},
		models.RoleSouthCoord:    {duty("Eden", tod(15, 0), tod(22, 0), "South Coord")},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if day.DetectedShifts != 1 || len(day.Slots) != 1 {
		t.Fatalf("detected %d with %d slots", day.DetectedShifts, len(day.Slots))
	}
	slot := day.Slots[0]
	for _, entry := range slot.Ranked(models.RoleSecondManager) {
		if entry.Score != 100 {
			t.Fatalf("single slot score = %d, want 100", entry.Score)
		}
	}
	if got := len(slot.Ranked(models.RoleSecondManager)); got != 2 {
		t.Fatalf("second managers = %d, want 2", got)
	}
	if best, ok := slot.Best(models.RoleSouthCoord); !ok || best.Employee != "Eden" {
		t.Fatalf("south coord = %+v, %v", best, ok)
	}
}

func TestAssembleMidShiftCandidateRankedInBothSlots(t *testing.T) {
	a := newTestAssembler(nil)
	mid := duty("Frankie", tod(11, 0), tod(19, 0), "North Coord")

	day, err := a.Assemble(Filtered{
		models.RoleManagerOn:  {morningManager, eveningManager},
		models.RoleNorthCoord: {mid, mid},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, slot := range day.OrderedSlots() {
		got := slot.Ranked(models.RoleNorthCoord)
		if len(got) != 1 || got[0].Score != -70 {
			t.Fatalf("slot %d north coords = %+v, want one entry scoring -70", slot.Index, got)
		}
	}
}

func TestAssembleNoManagers(t *testing.T) {
	a := newTestAssembler(nil)

	day, err := a.Assemble(Filtered{models.RoleSecondManager: {morningSecond}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !day.Empty() || day.DetectedShifts != 0 || len(day.Slots) != 0 {
		t.Fatalf("expected empty day, got %+v", day)
	}

	day, err = a.Assemble(nil)
	if err != nil || !day.Empty() {
		t.Fatalf("nil input: %+v, %v", day, err)
	}
}

func TestAssembleRejectsMalformedRecords(t *testing.T) {
	a := newTestAssembler(nil)
	broken := duty("", tod(8, 0), tod(15, 0), "2nd mgr")

	_, err := a.Assemble(Filtered{
		models.RoleManagerOn:     {morningManager},
		models.RoleSecondManager: {broken},
	})
	if !errors.Is(err, models.ErrInvalidRecord) {
		t.Fatalf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestBuildFallsBackWhenManagerWindowIsUnordered(t *testing.T) {
	log := &eventLog{}
	scorer := NewScorer(DefaultWeights())
	b := NewBuilder(classify.New(), scorer, log)
	// "12" as an end without a marker reads as midnight.
	rec := duty("Alex", tod(8, 0), tod(15, 0), "manager taking calls 8-12")

	day := b.Build(Filtered{models.RoleManagerOn: {rec}})
	if day.Slots[0].Window == nil || !day.Slots[0].Window.Valid() {
		t.Fatalf("slot window = %v, want an ordered window", day.Slots[0].Window)
	}
	if log.count(EventInvalidWindow) != 1 {
		t.Fatal("expected an invalid window event")
	}
}

func TestBestKeepsFirstOnTie(t *testing.T) {
	s := newSlot(0)
	s.add(models.RoleNorthCoord, Assignment{Employee: "first", Score: 50})
	s.add(models.RoleNorthCoord, Assignment{Employee: "second", Score: 50})
	s.add(models.RoleNorthCoord, Assignment{Employee: "low", Score: 10})

	if best, _ := s.Best(models.RoleNorthCoord); best.Employee != "first" {
		t.Fatalf("best = %q, want first", best.Employee)
	}
	if _, ok := s.Best(models.RoleSouthCoord); ok {
		t.Fatal("empty role should have no best candidate")
	}
}

func TestFilteredAddDeduplicates(t *testing.T) {
	f := Filtered{}
	f.Add(models.RoleManagerOn, morningManager)
	f.Add(models.RoleManagerOn, morningManager)
	f.Add(models.RoleNorthCoord, morningManager)

	if len(f[models.RoleManagerOn]) != 1 || f.Count() != 2 {
		t.Fatalf("filtered = %+v", f)
	}
}

func TestLogRecorderWritesStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogRecorder(zerolog.New(&buf).Level(zerolog.DebugLevel))

	MultiRecorder{rec, NopRecorder{}, nil}.Record(Event{
		Kind:     EventDuplicateSlot,
		Role:     models.RoleManagerOn,
		Slot:     0,
		Employee: "Alex",
		Message:  DuplicateManagerError,
	})

	out := buf.String()
	for _, want := range []string{`"kind":"duplicate_slot"`, `"employee":"Alex"`, `"level":"warn"`, `"component":"operday"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %s missing %s", out, want)
		}
	}
}
