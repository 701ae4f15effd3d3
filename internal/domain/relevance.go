package domain

import (
	"sort"
	"strings"
)

const (
	// Match weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0

	// Position bonus (earlier is better)
	ScorePositionBonus = 10.0

	// URL matches count for less than username or domain matches
	ScoreURLWeight = 0.5
)

// Candidate is a record with its quick-search score.
type Candidate struct {
	Record *BreachRecord
	Score  float64
}

// ScoreField scores how well term matches a single field value. Both are
// compared case-insensitively; 0 means no match.
func ScoreField(term, value string) float64 {
	term = strings.ToLower(strings.TrimSpace(term))
	value = strings.ToLower(value)
	if term == "" || value == "" {
		return 0.0
	}

	switch {
	case value == term:
		return ScoreExactMatch
	case strings.HasPrefix(value, term):
		return ScorePrefixMatch + lengthRatio(term, value)*ScorePositionBonus
	}

	pos := strings.Index(value, term)
	if pos < 0 {
		return 0.0
	}
	return ScoreSubstringMatch + (1-float64(pos)/float64(len(value)))*ScorePositionBonus
}

// lengthRatio favors values the term covers more of.
func lengthRatio(term, value string) float64 {
	return float64(len(term)) / float64(len(value))
}

// ScoreBreach is the best score of term over the record's username and
// domain, with URL matches weighted down.
func ScoreBreach(term string, r *BreachRecord) float64 {
	if r == nil {
		return 0.0
	}
	best := max(ScoreField(term, r.Username), ScoreField(term, r.Domain))
	return max(best, ScoreField(term, r.URL)*ScoreURLWeight)
}

// RankBreaches orders records by score, best first. Records that do not
// match are dropped; ties keep their input order.
func RankBreaches(term string, records []*BreachRecord) []*Candidate {
	candidates := make([]*Candidate, 0, len(records))
	for _, r := range records {
		if s := ScoreBreach(term, r); s > 0 {
			candidates = append(candidates, &Candidate{Record: r, Score: s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}
