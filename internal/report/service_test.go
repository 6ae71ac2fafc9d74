/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/archive"
	"github.com/friendsincode/ridesbot/internal/cache"
	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/operday"
)

type fakeFetcher struct {
	mu        sync.Mutex
	schedules map[string][]models.DutyRecord // filter id -> records
	dates     []string
	calls     int
	err       error
}

func (f *fakeFetcher) FetchSchedule(_ context.Context, filterID, date string) ([]models.DutyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.dates = append(f.dates, date)
	if f.err != nil {
		return nil, f.err
	}
	return f.schedules[filterID], nil
}

type memHistory struct {
	runs []models.ReportRun
}

func (h *memHistory) SaveRun(_ context.Context, run *models.ReportRun) error {
	h.runs = append(h.runs, *run)
	return nil
}

type memCache struct {
	reports map[string]*cache.CachedReport
}

func (c *memCache) GetReport(_ context.Context, date string) (*cache.CachedReport, bool) {
	r, ok := c.reports[date]
	return r, ok
}

func (c *memCache) SetReport(_ context.Context, report *cache.CachedReport) error {
	c.reports[report.Date] = report
	return nil
}

func (c *memCache) InvalidateReport(_ context.Context, date string) error {
	delete(c.reports, date)
	return nil
}

const (
	managersFilter   = "101"
	assistantsFilter = "202"
	coordsFilter     = "303"
)

func twoShiftSchedule() map[string][]models.DutyRecord {
	return map[string][]models.DutyRecord{
		managersFilter: {
			record("Alex", 8, 15, "manager taking calls 8-3"),
			record("Blair", 15, 22, "manager taking calls 3-10"),
		},
		assistantsFilter: {
			record("Casey", 8, 15, "2nd mgr"),
			record("Drew", 15, 22, "2nd mgr"),
		},
		coordsFilter: {
			record("Jordan", 15, 22, "North Coord"),
			record("Riley", 8, 15, "South coord"),
		},
	}
}

type fixture struct {
	svc     *Service
	fetcher *fakeFetcher
	history *memHistory
	cache   *memCache
	store   archive.ObjectStore
	bus     *events.Bus
}

func newFixture(t *testing.T, schedules map[string][]models.DutyRecord) *fixture {
	t.Helper()

	store, err := archive.NewFilesystemStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	f := &fixture{
		fetcher: &fakeFetcher{schedules: schedules},
		history: &memHistory{},
		cache:   &memCache{reports: map[string]*cache.CachedReport{}},
		store:   store,
		bus:     events.NewBus(),
	}

	classifier := classify.New()
	f.svc, err = NewService(Deps{
		Fetcher: f.fetcher,
		Filters: map[string]string{
			config.FilterManagers:   managersFilter,
			config.FilterAssistants: assistantsFilter,
			config.FilterCoords:     coordsFilter,
		},
		Classifier: classifier,
		Assembler:  operday.NewAssembler(classifier, operday.DefaultWeights(), nil),
		Formatter:  fixedFormatter(at(9, 5), 0),
		History:    f.history,
		Archive:    f.store,
		Cache:      f.cache,
		Events:     f.bus,
		Location:   time.UTC,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return f
}

func TestBuildTwoShiftDay(t *testing.T) {
	f := newFixture(t, twoShiftSchedule())
	built := f.bus.Subscribe(events.EventReportBuilt)

	rep, err := f.svc.Build(context.Background(), at(0, 0), models.TriggerSchedule)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := strings.Join([]string{
		greetingMorning,
		"Management team for July 04, 2026",
		"",
		"First shift:",
		"Manager on: Alex",
		"Second manager: Casey",
		"South coord: Riley",
		"\nSecond shift:",
		"Manager on: Blair",
		"Second manager: Drew",
		"North coord: Jordan",
		"",
		"Shifts updated at 09:05",
		`Reply "refresh" to update`,
	}, "\n")
	if rep.Message != want {
		t.Fatalf("message:\n%s\nwant:\n%s", rep.Message, want)
	}
	if strings.Contains(rep.DiscordMessage, "Second manager") || strings.Contains(rep.DiscordMessage, "North coord") {
		t.Fatalf("discord message kept omitted lines:\n%s", rep.DiscordMessage)
	}

	for _, d := range f.fetcher.dates {
		if d != "07/04/2026" {
			t.Fatalf("fetched date %q, want 07/04/2026", d)
		}
	}
	if f.fetcher.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", f.fetcher.calls)
	}

	if len(f.history.runs) != 1 {
		t.Fatalf("history runs = %d, want 1", len(f.history.runs))
	}
	run := f.history.runs[0]
	if run.Date != "2026-07-04" || run.Trigger != models.TriggerSchedule || run.DetectedShifts != 2 || run.ID != rep.ID {
		t.Fatalf("run = %+v", run)
	}
	if run.ArchiveKey != archive.SnapshotKey("2026-07-04", rep.ID) {
		t.Fatalf("archive key = %q", run.ArchiveKey)
	}

	data, err := f.store.Get(context.Background(), run.ArchiveKey)
	if err != nil {
		t.Fatalf("archived snapshot: %v", err)
	}
	var snapshot Report
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Message != rep.Message || snapshot.Day.DetectedShifts != 2 {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	select {
	case payload := <-built:
		if payload.String("date") != "2026-07-04" || payload.String("report_id") != rep.ID {
			t.Fatalf("event payload = %v", payload)
		}
	default:
		t.Fatal("expected a report.built event")
	}
}

func TestBuildEmptyDay(t *testing.T) {
	f := newFixture(t, map[string][]models.DutyRecord{
		assistantsFilter: {record("Casey", 8, 15, "2nd mgr")},
	})
	built := f.bus.Subscribe(events.EventReportBuilt)

	rep, err := f.svc.Build(context.Background(), at(0, 0), models.TriggerRefresh)
	if !errors.Is(err, ErrNoShifts) {
		t.Fatalf("err = %v, want ErrNoShifts", err)
	}
	if rep == nil || rep.Message != "No management report for July 04, 2026" {
		t.Fatalf("report = %+v", rep)
	}
	if len(f.history.runs) != 1 || f.history.runs[0].DetectedShifts != 0 {
		t.Fatalf("history = %+v", f.history.runs)
	}
	select {
	case <-built:
		t.Fatal("empty day should not publish report.built")
	default:
	}
}

func TestBuildFetchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.err = errors.New("w2w down")

	if _, err := f.svc.Build(context.Background(), at(0, 0), models.TriggerManual); err == nil || !strings.Contains(err.Error(), "w2w down") {
		t.Fatalf("err = %v", err)
	}
	if len(f.history.runs) != 0 {
		t.Fatal("failed fetch should not record a run")
	}
}

func TestGetServesCache(t *testing.T) {
	f := newFixture(t, twoShiftSchedule())
	ctx := context.Background()

	first, err := f.svc.Get(ctx, at(0, 0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Cached {
		t.Fatal("first Get should build")
	}

	second, err := f.svc.Get(ctx, at(0, 0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !second.Cached || second.Message != first.Message {
		t.Fatalf("second Get = %+v", second)
	}
	if best, ok := second.Day.Slots[1].Best(models.RoleManagerOn); !ok || best.Employee != "Blair" {
		t.Fatalf("cached day lost slot 1 manager: %+v", second.Day.Slots[1])
	}
	if f.fetcher.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", f.fetcher.calls)
	}

	f.svc.Invalidate(ctx, at(0, 0))
	if _, err := f.svc.Get(ctx, at(0, 0)); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if f.fetcher.calls != 6 {
		t.Fatalf("fetch calls after invalidate = %d, want 6", f.fetcher.calls)
	}
}

func TestParseDate(t *testing.T) {
	f := newFixture(t, nil)
	for _, raw := range []string{"07/04/2026", "2026-07-04"} {
		d, err := f.svc.ParseDate(raw)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", raw, err)
		}
		if !d.Equal(at(0, 0)) {
			t.Fatalf("ParseDate(%q) = %v", raw, d)
		}
	}
	if _, err := f.svc.ParseDate("July 4"); err == nil {
		t.Fatal("expected an error for an unsupported layout")
	}
}

func TestNewServiceRequiresFilters(t *testing.T) {
	_, err := NewService(Deps{
		Fetcher:   &fakeFetcher{},
		Assembler: operday.NewAssembler(classify.New(), operday.DefaultWeights(), nil),
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error without filters")
	}
}
