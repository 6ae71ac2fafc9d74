/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classify

import "testing"

func TestPatternFindToleratesTypos(t *testing.T) {
	p := Pattern{Literal: "manager taking calls", MaxEdits: 3}

	tests := []struct {
		text  string
		want  bool
		edits int
	}{
		{"manager taking calls 8-3", true, 0},
		{"MANAGER TAKING CALLS", true, 0},
		{"amnager taking calls 8-3", true, 1},
		{"managr takin calls", true, 2},
		{"managr takin cals", true, 3},
		{"ride host", false, 0},
		{"", false, 0},
	}

	for _, tt := range tests {
		m, ok := p.Find(tt.text)
		if ok != tt.want {
			t.Errorf("Find(%q) ok = %v, want %v", tt.text, ok, tt.want)
			continue
		}
		if ok && m.Edits != tt.edits {
			t.Errorf("Find(%q) edits = %d, want %d", tt.text, m.Edits, tt.edits)
		}
	}
}

func TestPatternFindReportsSpan(t *testing.T) {
	p := Pattern{Literal: "manager taking calls", MaxEdits: 3}

	m, ok := p.Find("x manager taking calls y")
	if !ok {
		t.Fatal("expected match")
	}
	if m.Start != 2 || m.End != 22 {
		t.Fatalf("span = [%d,%d), want [2,22)", m.Start, m.End)
	}

	text := "amnager taking calls 8-3"
	m, ok = p.Find(text)
	if !ok {
		t.Fatal("expected typo match")
	}
	if got := text[m.End:]; got != " 8-3" {
		t.Fatalf("remainder = %q, want %q", got, " 8-3")
	}
}

func TestPatternFindPrefixIsAnchored(t *testing.T) {
	p := Pattern{Literal: "north", MaxEdits: 1}

	if m, ok := p.FindPrefix("Nort coord"); !ok || m.Edits != 1 {
		t.Fatalf("FindPrefix(Nort coord) = %+v, %v", m, ok)
	}
	if _, ok := p.FindPrefix("coord north"); ok {
		t.Fatal("unanchored occurrence must not match a prefix search")
	}
	if _, ok := p.Find("coord north"); !ok {
		t.Fatal("Find should locate the occurrence anywhere")
	}
}

func TestPatternBudgetIsCapped(t *testing.T) {
	// A budget as large as the phrase would match any text at all.
	p := Pattern{Literal: "2nd", MaxEdits: 10}
	if p.Matches("zzz") {
		t.Fatal("budget should be capped below the phrase length")
	}
	if !p.Matches("2nd mgr") {
		t.Fatal("exact occurrence should match")
	}
}

func TestPatternEmptyLiteralNeverMatches(t *testing.T) {
	if (Pattern{}).Matches("anything") {
		t.Fatal("empty pattern matched")
	}
}
