/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package classify

import (
	"strings"
	"unicode"
)

// Pattern is a literal phrase matched approximately, case-insensitively, against free text.
// MaxEdits bounds the total number of substitutions, insertions and deletions.
type Pattern struct {
	Literal  string
	MaxEdits int
}

// Match locates an approximate occurrence of a pattern. Start and End are byte offsets.
type Match struct {
	Start int
	End   int
	Edits int
}

// Find returns the occurrence of p anywhere in text with the fewest edits.
// Among equally good occurrences the one ending first wins.
func (p Pattern) Find(text string) (Match, bool) {
	return p.search(text, false)
}

// FindPrefix is Find restricted to occurrences starting at the beginning of text.
func (p Pattern) FindPrefix(text string) (Match, bool) {
	return p.search(text, true)
}

// Matches reports whether p occurs anywhere in text within its edit budget.
func (p Pattern) Matches(text string) bool {
	_, ok := p.Find(text)
	return ok
}

// search runs Sellers' approximate substring algorithm over runes, tracking where
// each alignment began so the matched span can be reported.
func (p Pattern) search(text string, anchored bool) (Match, bool) {
	pat := []rune(strings.ToLower(p.Literal))
	m := len(pat)
	if m == 0 {
		return Match{}, false
	}
	budget := p.MaxEdits
	if budget >= m {
		budget = m - 1
	}
	if budget < 0 {
		budget = 0
	}

	runes, offsets := foldRunes(text)

	prevCost := make([]int, m+1)
	prevStart := make([]int, m+1)
	curCost := make([]int, m+1)
	curStart := make([]int, m+1)
	for i := 0; i <= m; i++ {
		prevCost[i] = i
	}

	best := Match{Edits: budget + 1}
	found := false

	for j := 1; j <= len(runes); j++ {
		if anchored {
			curCost[0] = j
			curStart[0] = 0
		} else {
			curCost[0] = 0
			curStart[0] = j
		}
		for i := 1; i <= m; i++ {
			cost := prevCost[i-1]
			if pat[i-1] != runes[j-1] {
				cost++
			}
			start := prevStart[i-1]

			if skip := prevCost[i] + 1; skip < cost {
				cost, start = skip, prevStart[i]
			}
			if missing := curCost[i-1] + 1; missing < cost {
				cost, start = missing, curStart[i-1]
			}
			curCost[i] = cost
			curStart[i] = start
		}

		if curCost[m] < best.Edits {
			best = Match{Start: offsets[curStart[m]], End: offsets[j], Edits: curCost[m]}
			found = true
			if best.Edits == 0 && !anchored {
				break
			}
		}

		prevCost, curCost = curCost, prevCost
		prevStart, curStart = curStart, prevStart
	}

	return best, found
}

// foldRunes lowercases text rune by rune and records the byte offset of every rune
// boundary, including the end of the string.
func foldRunes(text string) ([]rune, []int) {
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		runes = append(runes, unicode.ToLower(r))
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return runes, offsets
}
