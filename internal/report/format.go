/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package report

import (
	"math/rand"
	"strings"
	"time"

	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/operday"
)

const (
	greetingMorning   = "Good morning! \U0001F324️️\U0001F3A2"
	greetingAfternoon = "Good afternoon! ☀️\U0001F3A2"
	greetingEvening   = "Good evening! \U0001F319\U0001F3A2"
	greetingGeneric   = "Hi there! \U0001F600\U0001F3A2"

	// One roll in greetingOdds swaps the time-of-day greeting for the generic one.
	greetingOdds = 26
	genericRoll  = 13

	headerDateLayout = "January 02, 2006"
)

// Formatter renders a DayModel as the chat message.
type Formatter struct {
	// Now returns the local time the message is rendered at.
	Now func() time.Time
	// Roll returns a number in [0, 26).
	Roll func() int
}

// NewFormatter renders with the wall clock in loc.
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{
		Now:  func() time.Time { return time.Now().In(loc) },
		Roll: func() int { return rand.Intn(greetingOdds) },
	}
}

// Greeting picks the opening line for the hour of now.
func (f *Formatter) Greeting(now time.Time) string {
	if f.Roll() == genericRoll {
		return greetingGeneric
	}
	switch h := now.Hour(); {
	case h <= 11:
		return greetingMorning
	case h <= 17:
		return greetingAfternoon
	default:
		return greetingEvening
	}
}

// Format renders the management team for date.
func (f *Formatter) Format(day *operday.DayModel, date time.Time) string {
	now := f.Now()
	lines := []string{
		f.Greeting(now),
		"Management team for " + date.Format(headerDateLayout),
		"",
	}

	for _, slot := range day.OrderedSlots() {
		if day.DetectedShifts == operday.MaxSlots {
			if slot.Index == 0 {
				lines = append(lines, "First shift:")
			} else {
				lines = append(lines, "\nSecond shift:")
			}
		}
		for _, role := range models.Roles {
			best, ok := slot.Best(role)
			if !ok {
				continue
			}
			line := role.Label() + ": " + best.Employee
			if role == models.RoleManagerOn && slot.Duplicate {
				line += "*"
			}
			lines = append(lines, line)
		}
	}

	if day.HasErrors() {
		lines = append(lines, "")
		for _, msg := range day.Errors {
			lines = append(lines, "*"+msg)
		}
	}

	lines = append(lines,
		"",
		"Shifts updated at "+now.Format("15:04"),
		`Reply "refresh" to update`,
	)
	return strings.Join(lines, "\n")
}

// discordOmitted are line prefixes left out of the Discord message.
var discordOmitted = []string{
	models.RoleSecondManager.Label() + ": ",
	models.RoleNorthCoord.Label() + ": ",
}

// DiscordVariant strips the lines the Discord channel does not carry.
func DiscordVariant(message string) string {
	src := strings.Split(message, "\n")
	kept := make([]string, 0, len(src))
	for _, line := range src {
		omit := false
		for _, prefix := range discordOmitted {
			if strings.HasPrefix(line, prefix) {
				omit = true
				break
			}
		}
		if !omit {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// NoReportMessage is posted for a day without any manager taking calls.
func NoReportMessage(date time.Time) string {
	return "No management report for " + date.Format(headerDateLayout)
}
