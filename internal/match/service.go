// Package match orchestrates the end-to-end pipeline: validate the brief,
// embed it, retrieve candidates from the vector index, hydrate them from the
// catalog, score and rank, generate reasoning, and optionally persist the
// result. Every outbound call runs under a resilience guard; loss of the
// semantic path degrades to rule-only ranking over the full catalog instead
// of failing the request.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creatormatch/scout/internal/catalog"
	"github.com/creatormatch/scout/internal/completion"
	"github.com/creatormatch/scout/internal/embedding"
	"github.com/creatormatch/scout/internal/fault"
	"github.com/creatormatch/scout/internal/model"
	"github.com/creatormatch/scout/internal/persist"
	"github.com/creatormatch/scout/internal/resilience"
	"github.com/creatormatch/scout/internal/scoring"
	"github.com/creatormatch/scout/internal/search"
)

// NoCandidatesReasoning is returned when the catalog has nothing to rank.
const NoCandidatesReasoning = "no suitable creators found"

// defaultScoreParallelism caps the scoring fan-out when none is configured.
const defaultScoreParallelism = 8

// Config tunes one Service instance.
type Config struct {
	// TopK is how many matches a request returns.
	TopK int
	// VectorTopK is the candidate pool size fetched from the index.
	VectorTopK int
	// ScoreParallelism bounds the scoring fan-out per request.
	ScoreParallelism int
	// EmbedIncludeFilters appends the structured filter tags to the text
	// that gets embedded.
	EmbedIncludeFilters bool

	EmbedTimeout      time.Duration
	VectorTimeout     time.Duration
	CompletionTimeout time.Duration
	PersistTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.VectorTopK <= 0 {
		c.VectorTopK = 15
	}
	if c.ScoreParallelism <= 0 {
		c.ScoreParallelism = defaultScoreParallelism
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 5 * time.Second
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = 2 * time.Second
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = 10 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 2 * time.Second
	}
	return c
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Catalog   *catalog.Cache
	Index     search.Index
	Embedder  embedding.Provider
	Completer completion.Completer
	Sink      persist.Sink
	Scorer    *scoring.Scorer

	EmbedGuard      *resilience.Guard
	VectorGuard     *resilience.Guard
	CompletionGuard *resilience.Guard
	PersistGuard    *resilience.Guard

	// OnFallback fires once per request served by the rule-only path.
	OnFallback func()

	Logger *slog.Logger
}

// Service runs the match pipeline.
type Service struct {
	cfg  Config
	deps Deps
}

// New creates a Service.
func New(cfg Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{cfg: cfg.withDefaults(), deps: deps}
}

// candidate pairs a creator with its raw cosine score from the index.
type candidate struct {
	creator model.Creator
	cosine  float64
}

// Match runs the full pipeline for one request.
func (s *Service) Match(ctx context.Context, req model.MatchRequest) (model.MatchResponse, error) {
	if err := model.ValidateAssignment(req.Assignment); err != nil {
		return model.MatchResponse{}, fault.New(fault.KindValidation, "match.validate", err)
	}

	candidates, isFallback, err := s.gatherCandidates(ctx, req.Assignment)
	if err != nil {
		return model.MatchResponse{}, err
	}
	if isFallback && s.deps.OnFallback != nil {
		s.deps.OnFallback()
	}

	resp := model.MatchResponse{
		Assignment: req.Assignment,
		IsFallback: isFallback,
		Timestamp:  time.Now().UTC(),
	}

	if len(candidates) == 0 {
		resp.Reasoning = NoCandidatesReasoning
		return resp, nil
	}

	matches, err := s.scoreCandidates(ctx, req.Assignment, candidates)
	if err != nil {
		return model.MatchResponse{}, err
	}

	scoring.Rank(matches)
	matches = scoring.Truncate(matches, s.cfg.TopK)
	for i := range matches {
		matches[i].Reasoning = matchSummary(matches[i])
	}
	resp.Matches = matches
	resp.Reasoning = s.reasoning(ctx, req.Assignment, matches, isFallback)

	s.persistMatches(ctx, req.AssignmentID, matches)

	return resp, nil
}

// gatherCandidates runs the semantic path and falls back to the full catalog
// only when that path terminally fails. A healthy query with zero usable
// hits is an empty result, not a fallback trigger.
func (s *Service) gatherCandidates(ctx context.Context, a model.Assignment) ([]candidate, bool, error) {
	candidates, semanticErr := s.semanticCandidates(ctx, a)
	if semanticErr == nil {
		return candidates, false, nil
	}

	// Caller errors are not degradation triggers.
	switch fault.KindOf(semanticErr) {
	case fault.KindValidation, fault.KindConfig:
		return nil, false, semanticErr
	}

	fallback := s.catalogCandidates()
	if len(fallback) == 0 {
		return nil, false, fault.New(fault.KindUnavailable, "match.candidates",
			fmt.Errorf("semantic path down and catalog empty: %w", semanticErr))
	}

	s.deps.Logger.Warn("match: semantic path unavailable, serving rule-only fallback",
		"error", semanticErr, "catalog_size", len(fallback))
	return fallback, true, nil
}

// semanticCandidates embeds the brief and queries the vector index, both
// under their guards, then hydrates creators from the catalog snapshot.
func (s *Service) semanticCandidates(ctx context.Context, a model.Assignment) ([]candidate, error) {
	brief := a.BriefText(s.cfg.EmbedIncludeFilters)

	vector, err := resilience.Execute(ctx, s.deps.EmbedGuard, func(ctx context.Context) ([]float32, error) {
		embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		defer cancel()
		return s.deps.Embedder.Embed(embedCtx, brief)
	})
	if err != nil {
		return nil, err
	}

	results, err := resilience.Execute(ctx, s.deps.VectorGuard, func(ctx context.Context) ([]search.Result, error) {
		queryCtx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
		defer cancel()
		return s.deps.Index.Query(queryCtx, vector, s.cfg.VectorTopK, search.Filter{})
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(results))
	for _, r := range results {
		creator, ok := s.deps.Catalog.Get(r.CreatorID)
		if !ok {
			// Index and catalog refresh independently; stale hits are expected.
			s.deps.Logger.Debug("match: dropping stale index hit", "creator_id", r.CreatorID)
			continue
		}
		candidates = append(candidates, candidate{creator: creator, cosine: float64(r.Score)})
	}
	return candidates, nil
}

// catalogCandidates returns every cataloged creator with a neutral cosine.
func (s *Service) catalogCandidates() []candidate {
	all := s.deps.Catalog.All()
	candidates := make([]candidate, len(all))
	for i, creator := range all {
		candidates[i] = candidate{creator: creator, cosine: 0}
	}
	return candidates
}

// scoreCandidates fans the pure scorer out over the candidate set, bounded
// at the configured parallelism, preserving candidate order in the output.
func (s *Service) scoreCandidates(ctx context.Context, a model.Assignment, candidates []candidate) ([]model.Match, error) {
	matches := make([]model.Match, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(s.cfg.ScoreParallelism, len(candidates)))
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches[i] = s.deps.Scorer.Score(a, cand.creator, cand.cosine)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fault.New(fault.KindDeadline, "match.score", err)
	}
	return matches, nil
}

// reasoning asks the completion provider for a short rationale; any failure
// degrades to the templated summary. Reasoning never fails a request.
func (s *Service) reasoning(ctx context.Context, a model.Assignment, matches []model.Match, isFallback bool) string {
	templated := templatedReasoning(matches, isFallback)
	if s.deps.Completer == nil || s.deps.CompletionGuard == nil {
		return templated
	}

	prompt := reasoningPrompt(a, matches)
	text, err := resilience.Execute(ctx, s.deps.CompletionGuard, func(ctx context.Context) (string, error) {
		completionCtx, cancel := context.WithTimeout(ctx, s.cfg.CompletionTimeout)
		defer cancel()
		return s.deps.Completer.Complete(completionCtx, prompt, completion.Options{
			MaxTokens:   300,
			Temperature: 0.4,
		})
	})
	if err != nil {
		s.deps.Logger.Warn("match: completion unavailable, using templated reasoning", "error", err)
		return templated
	}
	return text
}

// persistMatches is best-effort: failures are logged and counted against the
// persistence breaker, never returned.
func (s *Service) persistMatches(ctx context.Context, assignmentID string, matches []model.Match) {
	if assignmentID == "" || s.deps.Sink == nil {
		return
	}

	err := s.deps.PersistGuard.Do(ctx, func(ctx context.Context) error {
		persistCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
		defer cancel()
		return s.deps.Sink.SaveMatches(persistCtx, assignmentID, matches)
	})
	if err != nil {
		s.deps.Logger.Warn("match: persisting matches failed",
			"assignment_id", assignmentID, "error", err)
	}
}

// matchSummary is the templated per-match explanation.
func matchSummary(m model.Match) string {
	parts := []string{fmt.Sprintf("semantic similarity %.2f", m.ScoreBreakdown.SemanticSimilarity)}
	if m.ScoreBreakdown.NicheAlignment > 0 {
		parts = append(parts, fmt.Sprintf("%d matching niche(s)", m.ScoreBreakdown.NicheAlignment))
	}
	if m.ScoreBreakdown.AudienceMatch > 0 {
		parts = append(parts, "audience locale match")
	}
	if m.ScoreBreakdown.ValueAlignment > 0 {
		parts = append(parts, fmt.Sprintf("value alignment %.2f", m.ScoreBreakdown.ValueAlignment))
	}
	return fmt.Sprintf("%s scored %.4f: %s", m.Creator.Nickname, m.MatchScore, strings.Join(parts, ", "))
}

// templatedReasoning is the canned response-level rationale used when the
// completion provider is down or not configured.
func templatedReasoning(matches []model.Match, isFallback bool) string {
	if len(matches) == 0 {
		return NoCandidatesReasoning
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Creator.Nickname
	}
	text := fmt.Sprintf("Top %d creators by hybrid score: %s.", len(matches), strings.Join(names, ", "))
	if isFallback {
		text += " Ranked by attribute rules only; semantic retrieval was unavailable."
	}
	return text
}

// reasoningPrompt builds the completion prompt from the brief and the ranked
// matches.
func reasoningPrompt(a model.Assignment, matches []model.Match) string {
	var b strings.Builder
	b.WriteString("You are helping a marketing team pick content creators for a brief.\n")
	b.WriteString("Brief topic: " + a.Topic + "\n")
	if a.KeyTakeaway != "" {
		b.WriteString("Key takeaway: " + a.KeyTakeaway + "\n")
	}
	if len(a.CreatorNiches) > 0 {
		b.WriteString("Requested niches: " + strings.Join(a.CreatorNiches, ", ") + "\n")
	}
	b.WriteString("\nRanked candidates:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s (score %.4f, niches: %s)\n",
			i+1, m.Creator.Nickname, m.MatchScore,
			strings.Join(m.Creator.Analysis.PrimaryNiches, ", "))
	}
	b.WriteString("\nIn 2-3 sentences, explain why these creators fit the brief. Do not invent facts.")
	return b.String()
}
