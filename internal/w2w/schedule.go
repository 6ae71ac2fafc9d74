/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package w2w

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/ridesbot/internal/classify"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/telemetry"
)

// W2W renders assigned shifts as calls like
// swl("380352058",2,"#000000","Jordan Myers","750227705","3pm - 10pm","   7.0 hours","North Coord");
var (
	swlPattern   = regexp.MustCompile(`swl\(([^;]+)\);`)
	fieldPattern = regexp.MustCompile(`"([^"]*)"|\w[^",]*`)
	clockPattern = regexp.MustCompile(`([0-9]{1,2}:?[0-9]{0,2}[ap]m)`)
	hoursPattern = regexp.MustCompile(`([0-9]{0,2}\.[0-9]{0,2})\s?hours?`)
)

const (
	fieldEmployee    = 3
	fieldTimes       = 5
	fieldHours       = 6
	fieldDescription = 7
)

// Fetcher retrieves the duty records of one skill filter for a W2W date
// (MM/DD/YYYY or "Today").
type Fetcher interface {
	FetchSchedule(ctx context.Context, filterID, date string) ([]models.DutyRecord, error)
}

// ParseSchedule extracts duty records from a manager schedule page.
// Entries that cannot be parsed are skipped and logged.
func ParseSchedule(page string, logger zerolog.Logger) []models.DutyRecord {
	var records []models.DutyRecord
	for _, call := range swlPattern.FindAllStringSubmatch(page, -1) {
		rec, ok := parseEntry(call[1])
		if !ok {
			logger.Warn().Str("entry", call[1]).Msg("skipping malformed schedule entry")
			continue
		}
		records = append(records, rec)
	}
	return records
}

func parseEntry(args string) (models.DutyRecord, bool) {
	var fields []string
	for _, m := range fieldPattern.FindAllStringSubmatch(args, -1) {
		if strings.HasPrefix(m[0], `"`) {
			fields = append(fields, m[1])
		} else {
			fields = append(fields, m[0])
		}
	}
	if len(fields) <= fieldDescription {
		return models.DutyRecord{}, false
	}

	clocks := clockPattern.FindAllString(strings.ToLower(fields[fieldTimes]), 2)
	if len(clocks) < 2 {
		return models.DutyRecord{}, false
	}
	start, ok := classify.ParseTimeOfDayOK(clocks[0])
	if !ok {
		return models.DutyRecord{}, false
	}
	end, ok := classify.ParseTimeOfDayOK(clocks[1])
	if !ok {
		return models.DutyRecord{}, false
	}

	hoursMatch := hoursPattern.FindStringSubmatch(fields[fieldHours])
	if hoursMatch == nil {
		return models.DutyRecord{}, false
	}
	hours, err := strconv.ParseFloat(hoursMatch[1], 64)
	if err != nil {
		return models.DutyRecord{}, false
	}

	rec := models.DutyRecord{
		Employee:    strings.TrimSpace(fields[fieldEmployee]),
		Start:       start,
		End:         end,
		TotalHours:  hours,
		Description: strings.TrimSpace(fields[fieldDescription]),
	}
	if rec.Validate() != nil {
		return models.DutyRecord{}, false
	}
	return rec, true
}

// HTTPFetcher reads schedule pages with the session's HTTP client.
type HTTPFetcher struct {
	session *Session
	logger  zerolog.Logger
}

// NewHTTPFetcher creates a fetcher backed by session.
func NewHTTPFetcher(session *Session, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		session: session,
		logger:  logger.With().Str("component", "w2w").Str("fetcher", "http").Logger(),
	}
}

// FetchSchedule implements Fetcher.
func (f *HTTPFetcher) FetchSchedule(ctx context.Context, filterID, date string) (records []models.DutyRecord, err error) {
	ctx, span := telemetry.StartSpan(ctx, "w2w.fetch_schedule",
		attribute.String("w2w.filter", filterID),
		attribute.String("w2w.date", date),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	page, err := f.session.SchedulePage(ctx, filterID, date)
	if err != nil {
		return nil, err
	}
	records = ParseSchedule(page, f.logger)
	span.SetAttributes(attribute.Int("w2w.records", len(records)))
	f.logger.Debug().Str("filter", filterID).Str("date", date).Int("records", len(records)).Msg("schedule fetched")
	return records, nil
}
