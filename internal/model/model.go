// Package model defines the core domain types: assignments (content briefs),
// creators (catalog entries), and the match results produced by the scoring
// pipeline. Types here carry no behavior beyond validation and normalization;
// scoring lives in internal/scoring.
package model

import (
	"strings"
	"time"
)

// TargetAudience describes who an assignment is aimed at.
type TargetAudience struct {
	Locale      string `json:"locale,omitempty"`      // short region code, e.g. "US", "ca"
	Demographic string `json:"demographic,omitempty"` // free text, e.g. "teens interested in finance"
}

// Assignment is a content brief submitted for matching. Immutable for the
// duration of a match call.
type Assignment struct {
	Topic             string         `json:"topic"`
	KeyTakeaway       string         `json:"keyTakeaway"`
	AdditionalContext string         `json:"additionalContext"`
	TargetAudience    TargetAudience `json:"targetAudience,omitempty"`
	CreatorNiches     []string       `json:"creatorNiches,omitempty"`
	CreatorValues     []string       `json:"creatorValues,omitempty"`
	ToneStyle         string         `json:"toneStyle,omitempty"`
}

// BriefText composes the text that gets embedded for semantic retrieval.
// When includeFilters is set, the structured filter tags are appended so
// they influence the embedding as well as the rule scores.
func (a Assignment) BriefText(includeFilters bool) string {
	parts := []string{a.Topic, a.KeyTakeaway, a.AdditionalContext}
	if includeFilters {
		if len(a.CreatorNiches) > 0 {
			parts = append(parts, strings.Join(a.CreatorNiches, " "))
		}
		if len(a.CreatorValues) > 0 {
			parts = append(parts, strings.Join(a.CreatorValues, " "))
		}
		if a.ToneStyle != "" {
			parts = append(parts, a.ToneStyle)
		}
	}
	return strings.Join(parts, " ")
}

// EngagementStyle captures how a creator's content reads.
type EngagementStyle struct {
	Tone []string `json:"tone,omitempty"`
}

// CreatorAnalysis holds the derived profile attached to each creator.
// Tag fields are normalized to lower case at catalog ingest.
type CreatorAnalysis struct {
	PrimaryNiches     []string        `json:"primaryNiches"`
	SecondaryNiches   []string        `json:"secondaryNiches,omitempty"`
	ApparentValues    []string        `json:"apparentValues,omitempty"`
	AudienceInterests []string        `json:"audienceInterests,omitempty"`
	EngagementStyle   EngagementStyle `json:"engagementStyle,omitempty"`
	Summary           string          `json:"summary,omitempty"`
}

// Creator is a catalog entry. The catalog cache owns live Creator records;
// the orchestrator and scorer borrow them by reference per request.
type Creator struct {
	ID            string          `json:"id"`
	Nickname      string          `json:"nickname"`
	Bio           string          `json:"bio,omitempty"`
	FollowerCount int64           `json:"followerCount"`
	HeartCount    int64           `json:"heartCount,omitempty"`
	Region        string          `json:"region,omitempty"`
	Analysis      CreatorAnalysis `json:"analysis"`
	// Embedding is the creator's profile vector when the catalog source
	// carries one (Postgres/SQLite sources). Nil when vectors live only in
	// the index. Never serialized to API consumers.
	Embedding []float32 `json:"-"`
}

// EngagementRatio is hearts per follower, the final ranking tie-breaker.
// A creator with no followers gets ratio hearts/1 rather than a division by zero.
func (c Creator) EngagementRatio() float64 {
	followers := c.FollowerCount
	if followers < 1 {
		followers = 1
	}
	return float64(c.HeartCount) / float64(followers)
}

// AllNiches returns the union of primary and secondary niches, case-folded
// and de-duplicated.
func (c Creator) AllNiches() map[string]bool {
	niches := make(map[string]bool, len(c.Analysis.PrimaryNiches)+len(c.Analysis.SecondaryNiches))
	for _, n := range c.Analysis.PrimaryNiches {
		niches[FoldTag(n)] = true
	}
	for _, n := range c.Analysis.SecondaryNiches {
		niches[FoldTag(n)] = true
	}
	return niches
}

// ProfileText composes the text that gets embedded as the creator's profile
// vector. Mirrors BriefText on the assignment side so brief and profile
// vectors live in a comparable region of the embedding space.
func (c Creator) ProfileText() string {
	parts := []string{c.Nickname, c.Bio}
	if len(c.Analysis.PrimaryNiches) > 0 {
		parts = append(parts, strings.Join(c.Analysis.PrimaryNiches, " "))
	}
	if len(c.Analysis.SecondaryNiches) > 0 {
		parts = append(parts, strings.Join(c.Analysis.SecondaryNiches, " "))
	}
	if len(c.Analysis.ApparentValues) > 0 {
		parts = append(parts, strings.Join(c.Analysis.ApparentValues, " "))
	}
	if len(c.Analysis.EngagementStyle.Tone) > 0 {
		parts = append(parts, strings.Join(c.Analysis.EngagementStyle.Tone, " "))
	}
	if c.Analysis.Summary != "" {
		parts = append(parts, c.Analysis.Summary)
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Normalize lower-cases all tag fields in place. Called once at catalog
// ingest so per-request scoring never re-folds creator tags.
func (c *Creator) Normalize() {
	c.Analysis.PrimaryNiches = FoldTags(c.Analysis.PrimaryNiches)
	c.Analysis.SecondaryNiches = FoldTags(c.Analysis.SecondaryNiches)
	c.Analysis.ApparentValues = FoldTags(c.Analysis.ApparentValues)
	c.Analysis.AudienceInterests = FoldTags(c.Analysis.AudienceInterests)
	c.Analysis.EngagementStyle.Tone = FoldTags(c.Analysis.EngagementStyle.Tone)
	c.Region = FoldTag(c.Region)
	if c.FollowerCount < 0 {
		c.FollowerCount = 0
	}
	if c.HeartCount < 0 {
		c.HeartCount = 0
	}
}

// FoldTag normalizes a single tag for case-insensitive comparison.
func FoldTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// FoldTags normalizes a tag list, dropping empties and duplicates while
// preserving first-seen order.
func FoldTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		folded := FoldTag(t)
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, folded)
	}
	return out
}

// ScoreBreakdown is the per-component explanation attached to every match.
// Every field is populated even when its contributing input is absent.
type ScoreBreakdown struct {
	SemanticSimilarity float64 `json:"semanticSimilarity"` // [0,1], normalized cosine
	NicheAlignment     int     `json:"nicheAlignment"`     // distinct matched niche tags
	AudienceMatch      float64 `json:"audienceMatch"`      // 0 or 1 under the binary locale rule
	ValueAlignment     float64 `json:"valueAlignment"`     // [0,1]
	NicheBoost         float64 `json:"nicheBoost"`         // [0,1], sqrt of niche match ratio
}

// Match pairs a creator with its composite score. Immutable once produced.
type Match struct {
	Creator        Creator        `json:"creator"`
	MatchScore     float64        `json:"matchScore"`
	ScoreBreakdown ScoreBreakdown `json:"scoreBreakdown"`
	Reasoning      string         `json:"reasoning,omitempty"`
}

// MatchResponse is the result of a full match pipeline run.
type MatchResponse struct {
	Assignment Assignment `json:"assignment"`
	Matches    []Match    `json:"matches"`
	Reasoning  string     `json:"reasoning,omitempty"`
	IsFallback bool       `json:"isFallback"`
	Timestamp  time.Time  `json:"timestamp"`
}
