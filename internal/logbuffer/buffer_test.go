/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBufferWrapsAround(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(Entry{Message: msg, Level: "info"})
	}

	all := b.GetAll()
	if len(all) != 3 || all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("entries = %+v", all)
	}
	if stats := b.Stats(); stats.Count != 3 || stats.LevelCount["info"] != 3 {
		t.Fatalf("stats = %+v", stats)
	}

	b.Clear()
	if len(b.GetAll()) != 0 {
		t.Fatal("expected empty buffer after clear")
	}
}

func TestWriterCapturesZerologEvents(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b, nil))

	logger.Debug().Str("component", "operday").Str("kind", "disqualified").Str("employee", "Drew").Int("score", -140).Msg("")
	logger.Warn().Str("component", "operday").Str("kind", "duplicate_slot").Str("employee", "Jordan").Msg("Multiple managers scheduled")
	logger.Info().Str("component", "w2w").Msg("session restored")

	if got := b.Query(QueryParams{Component: "operday"}); len(got) != 2 {
		t.Fatalf("operday entries = %d, want 2", len(got))
	}
	if got := b.Query(QueryParams{Kind: "disqualified"}); len(got) != 1 || got[0].Employee != "Drew" || got[0].Fields["score"] != float64(-140) {
		t.Fatalf("disqualified entries = %+v", got)
	}
	if got := b.Query(QueryParams{Employee: "jordan"}); len(got) != 1 || got[0].Level != "warn" {
		t.Fatalf("employee entries = %+v", got)
	}
	if got := b.Query(QueryParams{Search: "SESSION"}); len(got) != 1 {
		t.Fatalf("search entries = %+v", got)
	}

	newest := b.Query(QueryParams{Descending: true, Limit: 1})
	if len(newest) != 1 || newest[0].Component != "w2w" {
		t.Fatalf("newest = %+v", newest)
	}

	if stats := b.Stats(); stats.KindCount["duplicate_slot"] != 1 {
		t.Fatalf("kind counts = %v", stats.KindCount)
	}

	if comps := b.Components(); len(comps) != 2 || comps[0] != "operday" || comps[1] != "w2w" {
		t.Fatalf("components = %v", comps)
	}
}

func TestQueryLimitKeepsNewest(t *testing.T) {
	b := New(5)
	for _, msg := range []string{"1", "2", "3", "4", "5", "6"} {
		b.Add(Entry{Message: msg, Level: "info"})
	}

	asc := b.Query(QueryParams{Limit: 2})
	if len(asc) != 2 || asc[0].Message != "5" || asc[1].Message != "6" {
		t.Fatalf("ascending = %+v", asc)
	}
	desc := b.Query(QueryParams{Limit: 2, Descending: true})
	if len(desc) != 2 || desc[0].Message != "6" || desc[1].Message != "5" {
		t.Fatalf("descending = %+v", desc)
	}
	if all := b.Query(QueryParams{}); len(all) != 5 || all[0].Message != "2" {
		t.Fatalf("all = %+v", all)
	}
}
