/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/friendsincode/ridesbot/internal/models"
)

// Meridiem is an explicit am/pm marker, or none.
type Meridiem string

const (
	MeridiemNone Meridiem = ""
	MeridiemAM   Meridiem = "am"
	MeridiemPM   Meridiem = "pm"
)

var clockPattern = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?::(\d{2}))?\s*(a\.?m?\.?|p\.?m?\.?)?\s*$`)

// ParseTimeOfDay converts "8", "8:30", "3pm" or "11:30am" into a time of day.
// Text that matches none of those forms yields midnight.
func ParseTimeOfDay(text string) models.TimeOfDay {
	t, _ := ParseTimeOfDayOK(text)
	return t
}

// ParseTimeOfDayOK is ParseTimeOfDay with an indication of whether anything parsed.
func ParseTimeOfDayOK(text string) (models.TimeOfDay, bool) {
	hour, minute, mer, ok := splitClock(text)
	if !ok {
		return models.Midnight, false
	}
	switch mer {
	case MeridiemNone:
		if hour > 23 {
			return models.Midnight, false
		}
		return models.NewTimeOfDay(hour, minute), true
	default:
		if hour < 1 || hour > 12 {
			return models.Midnight, false
		}
		return models.NewTimeOfDay(applyMeridiem(hour, mer), minute), true
	}
}

// splitClock breaks clock text into hour, minute and marker.
func splitClock(text string) (int, int, Meridiem, bool) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, MeridiemNone, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, MeridiemNone, false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return 0, 0, MeridiemNone, false
		}
	}
	return hour, minute, parseMeridiem(m[3]), true
}

func parseMeridiem(s string) Meridiem {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "a"):
		return MeridiemAM
	case strings.HasPrefix(s, "p"):
		return MeridiemPM
	default:
		return MeridiemNone
	}
}

// applyMeridiem converts a 12-hour clock hour into a 24-hour hour.
func applyMeridiem(hour int, mer Meridiem) int {
	hour %= 12
	if mer == MeridiemPM {
		hour += 12
	}
	return hour
}

// RawWindow is the time range written inside a manager-on phrase, before any inference.
type RawWindow struct {
	Start         string
	StartMeridiem Meridiem
	End           string
	EndMeridiem   Meridiem
}

// Manager shifts essentially never start between midnight and 6am, nor end as "am"
// between 2am and noon. Unmarked sides are corrected accordingly.
const (
	latestUnmarkedAMStart = 6
	latestUnmarkedAMEnd   = 1
)

// Normalize resolves the raw window into 24-hour times, inferring am/pm per side when
// the scheduler left the marker off ("8-3" is 08:00-15:00, "3-10" is 15:00-22:00).
func (r RawWindow) Normalize() models.Window {
	return models.Window{
		Start: resolveSide(r.Start, r.StartMeridiem, true),
		End:   resolveSide(r.End, r.EndMeridiem, false),
	}
}

func resolveSide(text string, mer Meridiem, isStart bool) models.TimeOfDay {
	hour, minute, _, ok := splitClock(text)
	if !ok {
		return models.Midnight
	}
	if mer != MeridiemNone {
		if hour < 1 || hour > 12 {
			return models.Midnight
		}
		return models.NewTimeOfDay(applyMeridiem(hour, mer), minute)
	}
	if hour > 12 {
		if hour > 23 {
			return models.Midnight
		}
		return models.NewTimeOfDay(hour, minute)
	}

	hour %= 12
	if isStart && hour < latestUnmarkedAMStart {
		hour += 12
	}
	if !isStart && hour > latestUnmarkedAMEnd {
		hour += 12
	}
	return models.NewTimeOfDay(hour, minute)
}
