/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package classify turns the free-text description of a duty record into role flags
// and the manager-on time window, tolerating the typos schedulers make.
package classify

import (
	"regexp"
	"strings"

	"github.com/friendsincode/ridesbot/internal/models"
)

// Area is the coordinator's side of the operation.
type Area string

const (
	AreaNone  Area = ""
	AreaNorth Area = "north"
	AreaSouth Area = "south"
)

// DoubleShiftHours is the minimum length of a shift flagged as a double.
const DoubleShiftHours = 10.0

// RoleFlags are derived from a record on demand and never stored.
type RoleFlags struct {
	ManagerOn     bool `json:"is_manager_on"`
	SecondManager bool `json:"is_second_manager"`
	Coordinator   bool `json:"is_north_south_coord"`
	CoordArea     Area `json:"coord_area,omitempty"`
	AMShift       bool `json:"is_am_shift"`
	PMShift       bool `json:"is_pm_shift"`
	DoubleShift   bool `json:"is_double_shift"`
}

// Vocabulary is the closed set of phrases recognised in descriptions.
type Vocabulary struct {
	ManagerOn     []Pattern
	SecondManager []Pattern
	Shadow        Pattern
	North         Pattern
	South         Pattern
}

// DefaultVocabulary returns the phrases schedulers use today.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		ManagerOn: []Pattern{
			{Literal: "manager taking calls", MaxEdits: 3},
			{Literal: "mgr taking calls", MaxEdits: 2},
		},
		SecondManager: []Pattern{
			{Literal: "second manager", MaxEdits: 2},
			{Literal: "2nd manager", MaxEdits: 1},
			{Literal: "2nd mgr", MaxEdits: 0},
		},
		Shadow: Pattern{Literal: "shadow", MaxEdits: 1},
		North:  Pattern{Literal: "north", MaxEdits: 1},
		South:  Pattern{Literal: "south", MaxEdits: 1},
	}
}

// windowPattern reads the range that follows a manager-on phrase, e.g. " 8-3",
// ": 8am - 3:30pm" or " 3 to 10".
var windowPattern = regexp.MustCompile(`(?i)^[\s:,(\[]*(\d{1,2}(?::\d{2})?)\s*(am|pm|a|p)?\s*(?:-|–|—|to|\s)+\s*(\d{1,2}(?::\d{2})?)\s*(am|pm|a|p)?`)

// Classifier evaluates descriptions against a vocabulary. It holds no per-record state.
type Classifier struct {
	vocab Vocabulary
}

// New creates a classifier with the default vocabulary.
func New() *Classifier {
	return NewWithVocabulary(DefaultVocabulary())
}

// NewWithVocabulary creates a classifier with a custom vocabulary.
func NewWithVocabulary(vocab Vocabulary) *Classifier {
	return &Classifier{vocab: vocab}
}

// Classify computes every role and time-shape flag for the record.
func (c *Classifier) Classify(rec models.DutyRecord) RoleFlags {
	area := c.CoordArea(rec.Description)
	flags := RoleFlags{
		ManagerOn:     c.IsManagerOn(rec.Description),
		SecondManager: c.IsSecondManager(rec.Description),
		Coordinator:   area != AreaNone,
		CoordArea:     area,
		AMShift:       IsAMShift(rec),
		PMShift:       IsPMShift(rec),
	}
	flags.DoubleShift = flags.AMShift && flags.PMShift && rec.TotalHours >= DoubleShiftHours
	return flags
}

// Matches reports whether the record qualifies for the role.
func (c *Classifier) Matches(role models.Role, rec models.DutyRecord) bool {
	switch role {
	case models.RoleManagerOn:
		return c.IsManagerOn(rec.Description)
	case models.RoleSecondManager:
		return c.IsSecondManager(rec.Description)
	case models.RoleNorthCoord:
		return c.CoordArea(rec.Description) == AreaNorth
	case models.RoleSouthCoord:
		return c.CoordArea(rec.Description) == AreaSouth
	default:
		return false
	}
}

// IsManagerOn reports whether the description names the manager taking calls.
func (c *Classifier) IsManagerOn(description string) bool {
	_, ok := c.findManagerOn(description)
	return ok
}

// IsSecondManager reports whether the description names the second manager.
func (c *Classifier) IsSecondManager(description string) bool {
	for _, p := range c.vocab.SecondManager {
		if p.Matches(description) {
			return true
		}
	}
	return false
}

// CoordArea returns the coordinator side named at the start of the description.
// Trainee annotations ("shadow north") are not coordinator assignments.
func (c *Classifier) CoordArea(description string) Area {
	text := strings.TrimSpace(description)
	if m, ok := c.vocab.Shadow.FindPrefix(text); ok {
		rest := text[m.End:]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			return AreaNone
		}
	}

	north, nok := c.vocab.North.FindPrefix(text)
	south, sok := c.vocab.South.FindPrefix(text)
	switch {
	case nok && (!sok || north.Edits < south.Edits):
		return AreaNorth
	case sok && (!nok || south.Edits < north.Edits):
		return AreaSouth
	default:
		return AreaNone
	}
}

// ExtractManagerWindow returns the raw time range written after the manager-on phrase.
func (c *Classifier) ExtractManagerWindow(description string) (RawWindow, bool) {
	m, ok := c.findManagerOn(description)
	if !ok {
		return RawWindow{}, false
	}
	groups := windowPattern.FindStringSubmatch(description[m.End:])
	if groups == nil {
		return RawWindow{}, false
	}
	return RawWindow{
		Start:         groups[1],
		StartMeridiem: parseMeridiem(groups[2]),
		End:           groups[3],
		EndMeridiem:   parseMeridiem(groups[4]),
	}, true
}

// ManagerWindow returns the normalized manager-on window of the record, falling back to
// the record's own start and end when the phrase carries no times.
func (c *Classifier) ManagerWindow(rec models.DutyRecord) models.Window {
	raw, ok := c.ExtractManagerWindow(rec.Description)
	if !ok {
		return rec.Window()
	}
	return raw.Normalize()
}

func (c *Classifier) findManagerOn(description string) (Match, bool) {
	var best Match
	found := false
	for _, p := range c.vocab.ManagerOn {
		m, ok := p.Find(description)
		if ok && (!found || m.Edits < best.Edits) {
			best, found = m, true
		}
	}
	return best, found
}

// IsAMShift reports whether the shift starts before noon.
func IsAMShift(rec models.DutyRecord) bool {
	return rec.Start.Hour() < 12
}

// IsPMShift reports whether the shift starts after noon or runs to 5pm or later.
func IsPMShift(rec models.DutyRecord) bool {
	return rec.Start.Hour() >= 12 || rec.End.Hour() >= 17
}
