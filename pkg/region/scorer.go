// Package region chooses the region most likely to fulfill a spot capacity
// request.
package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/metrics"
	"github.com/NavarchProject/spotorch/pkg/provider"
)

// ErrNotFound is returned when no candidate region is left to recommend.
// It is a normal outcome, not a failure of the providers.
var ErrNotFound = errors.New("no region available")

// DefaultPriceWindow is how far back price quotes count for the tie-break.
const DefaultPriceWindow = time.Hour

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	// PriceWindow bounds how old a price quote may be. Default 1h.
	PriceWindow time.Duration
	// Policy optionally filters scored regions before ranking.
	Policy  *Policy
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Scorer ranks regions by capacity score and breaks ties by recent price.
type Scorer struct {
	scores  provider.ScoreProvider
	prices  provider.PriceHistoryProvider
	window  time.Duration
	policy  *Policy
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScorer creates a scorer over the given providers.
func NewScorer(scores provider.ScoreProvider, prices provider.PriceHistoryProvider, cfg ScorerConfig) *Scorer {
	if cfg.PriceWindow <= 0 {
		cfg.PriceWindow = DefaultPriceWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scorer{
		scores:  scores,
		prices:  prices,
		window:  cfg.PriceWindow,
		policy:  cfg.Policy,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With(slog.String("component", "region-scorer")),
		metrics: cfg.Metrics,
	}
}

// Recommend returns the best region among candidates minus excluded for
// resourceType, which may be abstract (see provider.ResourceTypeMappings).
//
// The region with the highest capacity score wins. When several regions
// share the highest score, the one with the lowest most recent price inside
// the price window wins; regions with a price beat regions without one, and
// remaining ties go to the lexicographically smallest region id.
// ErrNotFound is returned when nothing is left to recommend. Provider
// errors are returned wrapped and never degrade into a guess.
func (s *Scorer) Recommend(ctx context.Context, candidates []string, resourceType string, excluded []string) (string, error) {
	region, err := s.recommend(ctx, candidates, resourceType, excluded)
	switch {
	case err == nil:
		s.metrics.RecordRecommendation("found")
	case errors.Is(err, ErrNotFound):
		s.metrics.RecordRecommendation("not_found")
	default:
		s.metrics.RecordRecommendation("error")
	}
	return region, err
}

func (s *Scorer) recommend(ctx context.Context, candidates []string, resourceType string, excluded []string) (string, error) {
	effective := lo.Uniq(lo.Without(candidates, excluded...))
	sort.Strings(effective)
	if len(effective) == 0 {
		return "", ErrNotFound
	}

	resourceType = provider.ResolveResourceType(resourceType, s.scores.Name())
	scores, err := s.scores.Scores(ctx, resourceType, effective, 1)
	if err != nil {
		return "", fmt.Errorf("fetch capacity scores from %s: %w", s.scores.Name(), err)
	}

	eligible, err := s.filter(scores, effective, resourceType)
	if err != nil {
		return "", err
	}
	if len(eligible) == 0 {
		return "", ErrNotFound
	}

	best := lo.MaxBy(eligible, func(a, b provider.CapacityScore) bool { return a.Score > b.Score }).Score
	tied := lo.Uniq(lo.FilterMap(eligible, func(cs provider.CapacityScore, _ int) (string, bool) {
		return cs.Region, cs.Score == best
	}))
	sort.Strings(tied)

	if len(tied) == 1 {
		s.logger.Debug("region selected by score",
			slog.String("region", tied[0]),
			slog.Int("score", best),
		)
		return tied[0], nil
	}

	region, err := s.cheapest(ctx, resourceType, tied)
	if err != nil {
		return "", err
	}
	s.logger.Debug("region selected by price tie-break",
		slog.String("region", region),
		slog.Int("score", best),
		slog.Any("tied", tied),
	)
	return region, nil
}

// filter drops scores outside the effective set and those the policy rejects.
func (s *Scorer) filter(scores []provider.CapacityScore, effective []string, resourceType string) ([]provider.CapacityScore, error) {
	var out []provider.CapacityScore
	for _, cs := range scores {
		if !lo.Contains(effective, cs.Region) {
			continue
		}
		ok, err := s.policy.Allows(cs.Region, cs.Score, resourceType)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Debug("region rejected by policy",
				slog.String("region", cs.Region),
				slog.Int("score", cs.Score),
				slog.String("policy", s.policy.String()),
			)
			continue
		}
		out = append(out, cs)
	}
	return out, nil
}

// cheapest breaks a score tie. tied must be sorted.
func (s *Scorer) cheapest(ctx context.Context, resourceType string, tied []string) (string, error) {
	latest := make([]*provider.PriceQuote, len(tied))

	g, gctx := errgroup.WithContext(ctx)
	for i, region := range tied {
		i, region := i, region
		g.Go(func() error {
			quotes, err := s.prices.History(gctx, resourceType, region, s.window)
			if err != nil {
				return fmt.Errorf("fetch price history for %s: %w", region, err)
			}
			latest[i] = s.latestQuote(quotes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	winner := tied[0]
	winnerQuote := latest[0]
	for i := 1; i < len(tied); i++ {
		q := latest[i]
		if q == nil {
			continue
		}
		if winnerQuote == nil || q.Price < winnerQuote.Price {
			winner, winnerQuote = tied[i], q
		}
	}
	return winner, nil
}

// latestQuote returns the most recent quote inside the window, or nil.
func (s *Scorer) latestQuote(quotes []provider.PriceQuote) *provider.PriceQuote {
	now := s.clock.Now()
	start := now.Add(-s.window)

	var newest *provider.PriceQuote
	for i := range quotes {
		q := &quotes[i]
		if q.ObservedAt.Before(start) || q.ObservedAt.After(now) {
			continue
		}
		if newest == nil || q.ObservedAt.After(newest.ObservedAt) {
			newest = q
		}
	}
	return newest
}
