package matcher

import (
	"fmt"

	"github.com/raaihank/redacted/internal/infotype"
)

// Scan finds every non-overlapping occurrence of any info type in text and
// groups them by matched substring. Matches are ordered by first
// occurrence. When the same substring is classified differently at
// different offsets, the first classification wins.
func (m *Matcher) Scan(text string) []Match {
	matches := make([]Match, 0)
	if m.expr == nil {
		return matches
	}

	locs := m.expr.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return matches
	}

	index := make(map[string]int, len(locs))
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if start == end {
			continue
		}

		value := text[start:end]
		pos := Position{Start: start, End: end}

		if i, ok := index[value]; ok {
			matches[i].Positions = append(matches[i].Positions, pos)
			continue
		}

		index[value] = len(matches)
		matches = append(matches, Match{
			Text:      value,
			Positions: []Position{pos},
			InfoType:  m.classify(loc),
		})
	}

	return matches
}

// classify returns the info type whose group participated in the match.
// Exactly one alternative participates, so a miss means the matcher was
// built incorrectly.
func (m *Matcher) classify(loc []int) *infotype.InfoType {
	for i, g := range m.groupIndex {
		if loc[2*g] >= 0 {
			return m.infoTypes[i]
		}
	}
	panic(fmt.Sprintf("matcher: no info type group participated in match [%d,%d) of %q", loc[0], loc[1], m.pattern))
}
