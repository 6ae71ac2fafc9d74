/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/ridesbot/internal/archive"
	"github.com/friendsincode/ridesbot/internal/cache"
	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/operday"
	"github.com/friendsincode/ridesbot/internal/telemetry"
	"github.com/friendsincode/ridesbot/internal/w2w"
)

// Date layouts used across the pipeline.
const (
	// DateKeyLayout keys history rows, cache entries and archive snapshots.
	DateKeyLayout = "2006-01-02"
	// ScheduleDateLayout is what WhenToWork and the CLI expect.
	ScheduleDateLayout = "01/02/2006"
)

// ErrNoShifts is returned when no manager is taking calls on the requested day.
var ErrNoShifts = operday.ErrNoShifts

// Report is a built day report ready to post.
type Report struct {
	ID             string            `json:"id"`
	Date           string            `json:"date"`
	Day            *operday.DayModel `json:"day"`
	Message        string            `json:"message"`
	DiscordMessage string            `json:"discord_message"`
	BuiltAt        time.Time         `json:"built_at"`
	Cached         bool              `json:"cached"`
}

// History persists report runs.
type History interface {
	SaveRun(ctx context.Context, run *models.ReportRun) error
}

// Cache stores rendered reports per date.
type Cache interface {
	GetReport(ctx context.Context, date string) (*cache.CachedReport, bool)
	SetReport(ctx context.Context, report *cache.CachedReport) error
	InvalidateReport(ctx context.Context, date string) error
}

// Deps are the collaborators of a Service. Fetcher, Filters and Assembler are required.
type Deps struct {
	Fetcher    w2w.Fetcher
	Filters    map[string]string // label -> W2W skill filter id
	Classifier *classify.Classifier
	Assembler  *operday.Assembler
	Formatter  *Formatter
	History    History
	Archive    archive.ObjectStore
	Cache      Cache
	Events     events.Publisher
	Location   *time.Location
}

// Service builds day reports.
type Service struct {
	deps   Deps
	logger zerolog.Logger
}

// NewService validates deps and fills in defaults for the optional ones.
func NewService(deps Deps, logger zerolog.Logger) (*Service, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("report: schedule fetcher required")
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("report: assembler required")
	}
	if len(deps.Filters) == 0 {
		return nil, fmt.Errorf("report: at least one skill filter required")
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Formatter == nil {
		deps.Formatter = NewFormatter(deps.Location)
	}
	return &Service{
		deps:   deps,
		logger: logger.With().Str("component", "report").Logger(),
	}, nil
}

// Location returns the zone report dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.deps.Location
}

// Today returns the current date in the report zone.
func (s *Service) Today() time.Time {
	now := time.Now().In(s.deps.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.deps.Location)
}

// ParseDate reads a MM/DD/YYYY or YYYY-MM-DD date in the report zone.
func (s *Service) ParseDate(raw string) (time.Time, error) {
	for _, layout := range []string{ScheduleDateLayout, DateKeyLayout} {
		if d, err := time.ParseInLocation(layout, raw, s.deps.Location); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want MM/DD/YYYY or YYYY-MM-DD", raw)
}

// Get returns the cached report for date, building it when the cache has none.
func (s *Service) Get(ctx context.Context, date time.Time) (*Report, error) {
	key := date.Format(DateKeyLayout)
	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.GetReport(ctx, key); ok {
			rep, err := fromCache(cached)
			if err == nil {
				telemetry.ReportBuildsTotal.WithLabelValues("cached").Inc()
				return rep, nil
			}
			s.logger.Debug().Err(err).Str("date", key).Msg("discarding unreadable cached report")
		}
	}
	return s.Build(ctx, date, models.TriggerManual)
}

// Build scrapes every filter for date, assembles the day and renders the messages.
// The run is recorded in history even when the day is empty, in which case ErrNoShifts
// is returned alongside the report carrying NoReportMessage.
func (s *Service) Build(ctx context.Context, date time.Time, trigger string) (rep *Report, err error) {
	key := date.Format(DateKeyLayout)
	ctx, span := telemetry.StartSpan(ctx, "report.build",
		attribute.String("report.date", key),
		attribute.String("report.trigger", trigger),
	)
	start := time.Now()
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.ReportBuildDuration.Observe(time.Since(start).Seconds())
		switch {
		case errors.Is(err, ErrNoShifts):
			telemetry.ReportBuildsTotal.WithLabelValues("empty").Inc()
		case err != nil:
			telemetry.ReportBuildsTotal.WithLabelValues("error").Inc()
		default:
			telemetry.ReportBuildsTotal.WithLabelValues("ok").Inc()
		}
	}()

	byFilter, err := s.fetch(ctx, date)
	if err != nil {
		return nil, err
	}

	filtered := Group(byFilter, s.deps.Classifier)
	day, err := s.deps.Assembler.Assemble(filtered)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", key, err)
	}

	rep = &Report{
		ID:      uuid.NewString(),
		Date:    key,
		Day:     day,
		BuiltAt: time.Now().UTC(),
	}
	telemetry.DetectedShifts.Set(float64(day.DetectedShifts))

	if day.Empty() {
		rep.Message = NoReportMessage(date)
		rep.DiscordMessage = rep.Message
		s.record(ctx, rep, trigger)
		s.logger.Info().Str("date", key).Int("candidates", filtered.Count()).Msg("no manager taking calls")
		return rep, ErrNoShifts
	}

	rep.Message = s.deps.Formatter.Format(day, date)
	rep.DiscordMessage = DiscordVariant(rep.Message)
	s.record(ctx, rep, trigger)

	if s.deps.Events != nil {
		s.deps.Events.Publish(events.EventReportBuilt, events.Payload{
			"report_id":       rep.ID,
			"date":            key,
			"trigger":         trigger,
			"detected_shifts": day.DetectedShifts,
			"errors":          len(day.Errors),
		})
	}

	s.logger.Info().
		Str("date", key).
		Str("trigger", trigger).
		Int("detected_shifts", day.DetectedShifts).
		Int("errors", len(day.Errors)).
		Dur("took", time.Since(start)).
		Msg("report built")
	return rep, nil
}

// Invalidate drops the cached report for date so the next Get rebuilds it.
func (s *Service) Invalidate(ctx context.Context, date time.Time) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.InvalidateReport(ctx, date.Format(DateKeyLayout)); err != nil {
		s.logger.Debug().Err(err).Msg("invalidate cached report")
	}
}

func (s *Service) fetch(ctx context.Context, date time.Time) (map[string][]models.DutyRecord, error) {
	scheduleDate := date.Format(ScheduleDateLayout)
	byFilter := make(map[string][]models.DutyRecord, len(s.deps.Filters))
	for label, filterID := range s.deps.Filters {
		records, err := s.deps.Fetcher.FetchSchedule(ctx, filterID, scheduleDate)
		if err != nil {
			return nil, fmt.Errorf("fetch %s schedule: %w", label, err)
		}
		s.logger.Debug().Str("filter", label).Int("records", len(records)).Msg("schedule fetched")
		byFilter[label] = records
	}
	return byFilter, nil
}

// record archives the snapshot, saves the run and caches the rendered report.
// Failures are logged; a delivered report never depends on them.
func (s *Service) record(ctx context.Context, rep *Report, trigger string) {
	dayJSON, err := json.Marshal(rep.Day)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode day model")
		return
	}

	run := &models.ReportRun{
		ID:             rep.ID,
		Date:           rep.Date,
		Trigger:        trigger,
		DetectedShifts: rep.Day.DetectedShifts,
		ErrorCount:     len(rep.Day.Errors),
		Message:        rep.Message,
		DayJSON:        string(dayJSON),
	}

	if s.deps.Archive != nil {
		key := archive.SnapshotKey(rep.Date, rep.ID)
		snapshot, err := json.Marshal(rep)
		if err == nil {
			err = s.deps.Archive.Put(ctx, key, snapshot)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("archive report snapshot")
		} else {
			run.ArchiveKey = key
		}
	}

	if s.deps.History != nil {
		if err := s.deps.History.SaveRun(ctx, run); err != nil {
			s.logger.Warn().Err(err).Str("date", rep.Date).Msg("save report run")
		}
	}

	if s.deps.Cache != nil {
		err := s.deps.Cache.SetReport(ctx, &cache.CachedReport{
			Date:           rep.Date,
			DetectedShifts: rep.Day.DetectedShifts,
			Message:        rep.Message,
			DiscordMessage: rep.DiscordMessage,
			Day:            dayJSON,
			BuiltAt:        rep.BuiltAt,
		})
		if err != nil {
			s.logger.Debug().Err(err).Msg("cache report")
		}
	}
}

func fromCache(c *cache.CachedReport) (*Report, error) {
	var day operday.DayModel
	if err := json.Unmarshal(c.Day, &day); err != nil {
		return nil, fmt.Errorf("decode cached day: %w", err)
	}
	return &Report{
		Date:           c.Date,
		Day:            &day,
		Message:        c.Message,
		DiscordMessage: c.DiscordMessage,
		BuiltAt:        c.BuiltAt,
		Cached:         true,
	}, nil
}
