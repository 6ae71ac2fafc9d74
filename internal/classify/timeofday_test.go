/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classify

import (
	"testing"

	"github.com/friendsincode/ridesbot/internal/models"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want models.TimeOfDay
		ok   bool
	}{
		{"8", models.NewTimeOfDay(8, 0), true},
		{"8:30", models.NewTimeOfDay(8, 30), true},
		{"3pm", models.NewTimeOfDay(15, 0), true},
		{"3 PM", models.NewTimeOfDay(15, 0), true},
		{"11:30am", models.NewTimeOfDay(11, 30), true},
		{"12pm", models.NewTimeOfDay(12, 0), true},
		{"12am", models.Midnight, true},
		{"18:45", models.NewTimeOfDay(18, 45), true},
		{"", models.Midnight, false},
		{"noon", models.Midnight, false},
		{"25", models.Midnight, false},
		{"13pm", models.Midnight, false},
		{"8:75", models.Midnight, false},
	}

	for _, tt := range tests {
		got, ok := ParseTimeOfDayOK(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTimeOfDayOK(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if plain := ParseTimeOfDay(tt.in); plain != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %s, want %s", tt.in, plain, tt.want)
		}
	}
}

func TestRawWindowNormalizeInfersMeridiem(t *testing.T) {
	tests := []struct {
		name      string
		raw       RawWindow
		wantStart models.TimeOfDay
		wantEnd   models.TimeOfDay
	}{
		{
			name:      "morning shift without markers",
			raw:       RawWindow{Start: "8", End: "3"},
			wantStart: models.NewTimeOfDay(8, 0),
			wantEnd:   models.NewTimeOfDay(15, 0),
		},
		{
			name:      "evening shift without markers",
			raw:       RawWindow{Start: "3", End: "10"},
			wantStart: models.NewTimeOfDay(15, 0),
			wantEnd:   models.NewTimeOfDay(22, 0),
		},
		{
			name:      "minutes are kept",
			raw:       RawWindow{Start: "11:30", End: "7:15"},
			wantStart: models.NewTimeOfDay(11, 30),
			wantEnd:   models.NewTimeOfDay(19, 15),
		},
		{
			name:      "explicit markers win",
			raw:       RawWindow{Start: "5", StartMeridiem: MeridiemAM, End: "11", EndMeridiem: MeridiemAM},
			wantStart: models.NewTimeOfDay(5, 0),
			wantEnd:   models.NewTimeOfDay(11, 0),
		},
		{
			name:      "marker on one side only",
			raw:       RawWindow{Start: "9", StartMeridiem: MeridiemAM, End: "4"},
			wantStart: models.NewTimeOfDay(9, 0),
			wantEnd:   models.NewTimeOfDay(16, 0),
		},
		{
			name:      "24 hour clock is literal",
			raw:       RawWindow{Start: "13", End: "21"},
			wantStart: models.NewTimeOfDay(13, 0),
			wantEnd:   models.NewTimeOfDay(21, 0),
		},
		{
			name:      "noon start",
			raw:       RawWindow{Start: "12", End: "8"},
			wantStart: models.NewTimeOfDay(12, 0),
			wantEnd:   models.NewTimeOfDay(20, 0),
		},
		{
			name:      "unparsable sides fall back to midnight",
			raw:       RawWindow{Start: "x", End: "y"},
			wantStart: models.Midnight,
			wantEnd:   models.Midnight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.raw.Normalize()
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Fatalf("Normalize() = %s, want %s-%s", got, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
