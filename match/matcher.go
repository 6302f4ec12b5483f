// Package match implements multi-pattern literal search over a known
// vocabulary, used by Tier A to find entity surface forms in document text.
package match

import (
	"sort"
	"strings"
)

// Match is one located occurrence of a registered pattern. Text preserves
// the original casing from the scanned input; Start and End are byte offsets
// with End exclusive.
type Match struct {
	EntityType string `json:"entity_type"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

type pattern struct {
	entityType string
	needle     string // lowercased
}

// Matcher scans text for registered literal patterns, case-insensitively.
// AddPatterns is a setup-time operation; after construction the matcher is
// immutable and safe for concurrent use.
type Matcher struct {
	patterns []pattern
}

func New() *Matcher {
	return &Matcher{}
}

// AddPatterns registers a set of literal needles under an entity type.
// Empty needles are ignored.
func (m *Matcher) AddPatterns(entityType string, patterns []string) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		m.patterns = append(m.patterns, pattern{entityType: entityType, needle: strings.ToLower(p)})
	}
}

// FindMatches locates every occurrence of every registered pattern in text.
// Matching is case-insensitive; when two candidates start at the same index
// the longest wins, and a match suppresses any other match fully contained
// inside its span. Partially overlapping matches at a later start survive.
// Output is sorted by ascending start. Empty input yields an empty slice.
func (m *Matcher) FindMatches(text string) []Match {
	out := make([]Match, 0)
	if text == "" || len(m.patterns) == 0 {
		return out
	}

	lower := strings.ToLower(text)
	var candidates []Match
	for _, p := range m.patterns {
		for i := 0; ; {
			j := strings.Index(lower[i:], p.needle)
			if j < 0 {
				break
			}
			start := i + j
			end := start + len(p.needle)
			candidates = append(candidates, Match{
				EntityType: p.entityType,
				Text:       text[start:end],
				Start:      start,
				End:        end,
			})
			i = end
		}
	}

	// Longest-enclosing wins: scan candidates ordered by start, longest
	// first, and drop anything nested inside an accepted span.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Start != candidates[j].Start {
			return candidates[i].Start < candidates[j].Start
		}
		return candidates[i].End > candidates[j].End
	})
	for _, c := range candidates {
		nested := false
		for _, a := range out {
			if a.Start <= c.Start && c.End <= a.End {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}
