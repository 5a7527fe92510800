// Package scoring implements the hybrid match scorer: vector-space semantic
// similarity fused with rule-based attribute overlap under fixed component
// weights, plus the deterministic ranker over the produced matches.
//
// Everything here is pure — no I/O, no clocks, no randomness. The only
// side effect is the optional warning hook fired when invalid catalog data
// is clamped.
package scoring

import (
	"math"

	"github.com/creatormatch/scout/internal/model"
)

// Weights are the component weights of the composite score. They should sum
// to 1.0; Normalize rescales them when they don't.
type Weights struct {
	Semantic float64
	Niche    float64
	Audience float64
	Value    float64
}

// DefaultWeights is the standard profile: semantic-dominant with a strong
// niche signal.
var DefaultWeights = Weights{Semantic: 0.7, Niche: 0.2, Audience: 0.05, Value: 0.05}

// Normalize rescales the weights to sum to 1.0. Zero-sum weights fall back
// to the default profile.
func (w Weights) Normalize() Weights {
	sum := w.Semantic + w.Niche + w.Audience + w.Value
	if sum <= 0 {
		return DefaultWeights
	}
	return Weights{
		Semantic: w.Semantic / sum,
		Niche:    w.Niche / sum,
		Audience: w.Audience / sum,
		Value:    w.Value / sum,
	}
}

// AudienceScorer computes the audience component in [0,1]. The contractual
// rule is BinaryLocaleAudience; MultiFactorAudience is an optional variant.
type AudienceScorer func(a model.Assignment, c model.Creator) float64

// BinaryLocaleAudience returns 1 when the assignment locale is present and
// case-folded equal to the creator's region, else 0.
func BinaryLocaleAudience(a model.Assignment, c model.Creator) float64 {
	locale := model.FoldTag(a.TargetAudience.Locale)
	if locale == "" {
		return 0
	}
	if locale == model.FoldTag(c.Region) {
		return 1
	}
	return 0
}

// MultiFactorAudience blends the locale match with audience-interest overlap
// against the assignment's niche tags. Offered as an alternative profile;
// not part of the ranking contract.
func MultiFactorAudience(a model.Assignment, c model.Creator) float64 {
	locale := BinaryLocaleAudience(a, c)
	if len(a.CreatorNiches) == 0 || len(c.Analysis.AudienceInterests) == 0 {
		return locale
	}
	interests := make(map[string]bool, len(c.Analysis.AudienceInterests))
	for _, tag := range c.Analysis.AudienceInterests {
		interests[model.FoldTag(tag)] = true
	}
	overlap := 0
	for _, tag := range model.FoldTags(a.CreatorNiches) {
		if interests[tag] {
			overlap++
		}
	}
	interest := float64(overlap) / float64(len(model.FoldTags(a.CreatorNiches)))
	return clamp01(0.6*locale + 0.4*interest)
}

// Scorer computes composite match scores. The zero value is not usable;
// construct with New.
type Scorer struct {
	weights  Weights
	audience AudienceScorer
	// onWarn fires when invalid catalog data (e.g. negative follower count)
	// is clamped non-fatally. Nil means no observer.
	onWarn func(reason string)
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights overrides the default weight profile.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w.Normalize() }
}

// WithAudienceScorer swaps the audience component strategy.
func WithAudienceScorer(fn AudienceScorer) Option {
	return func(s *Scorer) { s.audience = fn }
}

// WithWarnHook registers an observer for clamped invalid data.
func WithWarnHook(fn func(reason string)) Option {
	return func(s *Scorer) { s.onWarn = fn }
}

// New creates a Scorer with the default weights and the binary locale
// audience rule.
func New(opts ...Option) *Scorer {
	s := &Scorer{weights: DefaultWeights, audience: BinaryLocaleAudience}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes a Match for one candidate. semanticScore is the raw cosine
// in [-1,1]; non-finite values are treated as 0 cosine (neutral). Missing
// optional assignment fields contribute zero, never NaN.
func (s *Scorer) Score(a model.Assignment, c model.Creator, semanticScore float64) model.Match {
	if math.IsNaN(semanticScore) || math.IsInf(semanticScore, 0) {
		semanticScore = 0
	}
	if semanticScore < -1 {
		semanticScore = -1
	} else if semanticScore > 1 {
		semanticScore = 1
	}
	semantic := (semanticScore + 1) / 2

	if c.FollowerCount < 0 {
		s.warn("negative follower count clamped")
		c.FollowerCount = 0
	}
	if c.HeartCount < 0 {
		s.warn("negative heart count clamped")
		c.HeartCount = 0
	}

	wantNiches := model.FoldTags(a.CreatorNiches)
	nicheCount := nicheAlignment(wantNiches, c)

	nicheRatio := 0.0
	if n := len(wantNiches); n > 0 {
		nicheRatio = float64(nicheCount) / float64(n)
	}
	boost := math.Sqrt(nicheRatio)

	audience := clamp01(s.audience(a, c))
	value := valueAlignment(a.CreatorValues, c)

	base := s.weights.Semantic*semantic +
		s.weights.Niche*nicheRatio +
		s.weights.Audience*audience +
		s.weights.Value*value
	score := clamp01(base * (1 + boost))

	return model.Match{
		Creator:    c,
		MatchScore: round4(score),
		ScoreBreakdown: model.ScoreBreakdown{
			SemanticSimilarity: round4(semantic),
			NicheAlignment:     nicheCount,
			AudienceMatch:      round4(audience),
			ValueAlignment:     round4(value),
			NicheBoost:         round4(boost),
		},
	}
}

func (s *Scorer) warn(reason string) {
	if s.onWarn != nil {
		s.onWarn(reason)
	}
}

// nicheAlignment counts distinct requested niches present in the union of
// the creator's primary and secondary niches.
func nicheAlignment(wantNiches []string, c model.Creator) int {
	if len(wantNiches) == 0 {
		return 0
	}
	have := c.AllNiches()
	count := 0
	for _, tag := range wantNiches {
		if have[tag] {
			count++
		}
	}
	return count
}

// valueAlignment is the matched fraction of the assignment's requested
// values, or 0 when none were requested.
func valueAlignment(wantValues []string, c model.Creator) float64 {
	want := model.FoldTags(wantValues)
	if len(want) == 0 {
		return 0
	}
	have := make(map[string]bool, len(c.Analysis.ApparentValues))
	for _, tag := range c.Analysis.ApparentValues {
		have[model.FoldTag(tag)] = true
	}
	matched := 0
	for _, tag := range want {
		if have[tag] {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round4 rounds to four decimals for stable score equality across runs.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
