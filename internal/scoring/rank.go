package scoring

import (
	"sort"

	"github.com/creatormatch/scout/internal/model"
)

// Comparison tolerances for the ranking keys. Scores within tolerance are
// treated as tied and the comparison falls through to the next key.
const (
	semanticTolerance = 0.01
	scoreTolerance    = 0.001
)

// Rank sorts matches into the canonical total order, descending by:
//
//  1. niche alignment count,
//  2. semantic similarity (ties within 0.01),
//  3. composite score (ties within 0.001),
//  4. engagement ratio (hearts per follower),
//  5. follower count.
//
// The sort is stable: elements tying on all five keys keep their input
// order, which is the vector-query order. Rank mutates and returns its
// argument; an empty input yields an empty output.
func Rank(matches []model.Match) []model.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return rankLess(matches[j], matches[i])
	})
	return matches
}

// rankLess reports whether a orders strictly before b ascending; Rank
// inverts it for descending order.
func rankLess(a, b model.Match) bool {
	if a.ScoreBreakdown.NicheAlignment != b.ScoreBreakdown.NicheAlignment {
		return a.ScoreBreakdown.NicheAlignment < b.ScoreBreakdown.NicheAlignment
	}
	if d := a.ScoreBreakdown.SemanticSimilarity - b.ScoreBreakdown.SemanticSimilarity; d < -semanticTolerance || d > semanticTolerance {
		return d < 0
	}
	if d := a.MatchScore - b.MatchScore; d < -scoreTolerance || d > scoreTolerance {
		return d < 0
	}
	if ra, rb := a.Creator.EngagementRatio(), b.Creator.EngagementRatio(); ra != rb {
		return ra < rb
	}
	return a.Creator.FollowerCount < b.Creator.FollowerCount
}

// Truncate caps a ranked list at k, tolerating k <= 0 as "no results".
func Truncate(matches []model.Match, k int) []model.Match {
	if k <= 0 {
		return matches[:0]
	}
	if len(matches) > k {
		return matches[:k]
	}
	return matches
}
