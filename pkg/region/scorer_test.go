package region

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/metrics"
	"github.com/NavarchProject/spotorch/pkg/provider"
	"github.com/NavarchProject/spotorch/pkg/provider/fake"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T, scores map[string]int, prices map[string]float64) (*Scorer, *fake.Market) {
	t.Helper()
	clk := clock.NewFakeClock(testNow)
	market := fake.New(fake.Config{Scores: scores, Prices: prices, Clock: clk})
	return NewScorer(market, market, ScorerConfig{Clock: clk}), market
}

func TestRecommend_DistinctScores(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]int
		want   string
	}{
		{"single region", map[string]int{"us-east-1": 3}, "us-east-1"},
		{"highest wins", map[string]int{"us-east-1": 3, "us-west-2": 8, "eu-west-1": 5}, "us-west-2"},
		{"lexicographically last can win", map[string]int{"ap-south-1": 1, "us-west-2": 9}, "us-west-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, market := newTestScorer(t, tt.scores, nil)
			candidates := make([]string, 0, len(tt.scores))
			for r := range tt.scores {
				candidates = append(candidates, r)
			}
			got, err := s.Recommend(context.Background(), candidates, "p5.48xlarge", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, market.ScoreCalls())
			assert.Zero(t, market.HistoryCalls(), "no price lookups without a tie")
		})
	}
}

func TestRecommend_TieBrokenByPrice(t *testing.T) {
	s, _ := newTestScorer(t,
		map[string]int{"A": 9, "B": 9, "C": 7},
		map[string]float64{"A": 12, "B": 10},
	)
	got, err := s.Recommend(context.Background(), []string{"A", "B", "C"}, "p5.48xlarge", nil)
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestRecommend_UsesMostRecentQuote(t *testing.T) {
	s, market := newTestScorer(t, map[string]int{"A": 5, "B": 5}, nil)
	// A was cheap earlier but its latest quote is the most expensive.
	market.AddQuote("A", 1, testNow.Add(-50*time.Minute))
	market.AddQuote("A", 20, testNow.Add(-5*time.Minute))
	market.AddQuote("B", 15, testNow.Add(-30*time.Minute))

	got, err := s.Recommend(context.Background(), []string{"A", "B"}, "g5.xlarge", nil)
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestRecommend_IgnoresQuotesOutsideWindow(t *testing.T) {
	s, market := newTestScorer(t, map[string]int{"A": 5, "B": 5}, nil)
	market.AddQuote("A", 1, testNow.Add(-2*time.Hour))
	market.AddQuote("B", 15, testNow.Add(-10*time.Minute))

	got, err := s.Recommend(context.Background(), []string{"A", "B"}, "g5.xlarge", nil)
	require.NoError(t, err)
	assert.Equal(t, "B", got, "priced region beats region whose only quote is stale")
}

func TestRecommend_TieWithoutPricesIsDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		s, _ := newTestScorer(t, map[string]int{"us-west-2": 4, "eu-west-1": 4, "ap-south-1": 4}, nil)
		got, err := s.Recommend(context.Background(), []string{"us-west-2", "eu-west-1", "ap-south-1"}, "g5.xlarge", nil)
		require.NoError(t, err)
		assert.Equal(t, "ap-south-1", got)
	}
}

func TestRecommend_EqualPricesFallBackToRegionID(t *testing.T) {
	s, _ := newTestScorer(t,
		map[string]int{"us-west-2": 4, "eu-west-1": 4},
		map[string]float64{"us-west-2": 3.5, "eu-west-1": 3.5},
	)
	got, err := s.Recommend(context.Background(), []string{"us-west-2", "eu-west-1"}, "g5.xlarge", nil)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", got)
}

func TestRecommend_NotFound(t *testing.T) {
	t.Run("empty candidates", func(t *testing.T) {
		s, market := newTestScorer(t, map[string]int{"A": 1}, nil)
		_, err := s.Recommend(context.Background(), nil, "g5.xlarge", nil)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, market.ScoreCalls())
	})
	t.Run("everything excluded", func(t *testing.T) {
		s, _ := newTestScorer(t, map[string]int{"A": 1, "B": 2}, nil)
		_, err := s.Recommend(context.Background(), []string{"A", "B"}, "g5.xlarge", []string{"B", "A"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("no score data", func(t *testing.T) {
		s, market := newTestScorer(t, nil, nil)
		_, err := s.Recommend(context.Background(), []string{"A", "B"}, "g5.xlarge", nil)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, market.ScoreCalls())
	})
}

func TestRecommend_ExcludedRegionNeverReturned(t *testing.T) {
	s, _ := newTestScorer(t, map[string]int{"A": 9, "B": 3}, nil)
	got, err := s.Recommend(context.Background(), []string{"A", "B"}, "g5.xlarge", []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

type extraScores struct {
	provider.PriceHistoryProvider
}

func (extraScores) Name() string { return "extra" }

func (extraScores) Scores(ctx context.Context, resourceType string, regions []string, capacity int) ([]provider.CapacityScore, error) {
	return []provider.CapacityScore{
		{Region: "outside", Score: 10},
		{Region: "A", Score: 2},
	}, nil
}

func TestRecommend_IgnoresScoresOutsideEffectiveSet(t *testing.T) {
	s := NewScorer(extraScores{}, fake.New(fake.Config{}), ScorerConfig{})
	got, err := s.Recommend(context.Background(), []string{"A"}, "g5.xlarge", nil)
	require.NoError(t, err)
	assert.Equal(t, "A", got)
}

type capturingScores struct {
	resourceType string
	capacity     int
	regions      []string
}

func (c *capturingScores) Name() string { return "aws" }

func (c *capturingScores) Scores(ctx context.Context, resourceType string, regions []string, capacity int) ([]provider.CapacityScore, error) {
	c.resourceType = resourceType
	c.capacity = capacity
	c.regions = regions
	return []provider.CapacityScore{{Region: regions[0], Score: 1}}, nil
}

func TestRecommend_BatchesAbstractTypeWithUnitCapacity(t *testing.T) {
	scores := &capturingScores{}
	s := NewScorer(scores, fake.New(fake.Config{}), ScorerConfig{})
	_, err := s.Recommend(context.Background(), []string{"us-west-2", "us-east-1", "us-east-1"}, "h100-8x", nil)
	require.NoError(t, err)
	assert.Equal(t, "p5.48xlarge", scores.resourceType)
	assert.Equal(t, 1, scores.capacity)
	assert.Equal(t, []string{"us-east-1", "us-west-2"}, scores.regions)
}

func TestRecommend_ProviderErrorsPropagate(t *testing.T) {
	boom := errors.New("throttled")

	t.Run("scores", func(t *testing.T) {
		s, market := newTestScorer(t, map[string]int{"A": 1}, nil)
		market.FailScores(boom)
		got, err := s.Recommend(context.Background(), []string{"A"}, "g5.xlarge", nil)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Empty(t, got)
	})
	t.Run("history", func(t *testing.T) {
		s, market := newTestScorer(t, map[string]int{"A": 1, "B": 1}, nil)
		market.FailHistory(boom)
		got, err := s.Recommend(context.Background(), []string{"A", "B"}, "g5.xlarge", nil)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, got)
	})
}

func TestRecommend_Policy(t *testing.T) {
	policy, err := CompilePolicy(`score >= 3 && !region.startsWith("ap-")`)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	market := fake.New(fake.Config{
		Scores: map[string]int{"ap-south-1": 9, "us-east-1": 4, "eu-west-1": 2},
		Clock:  clk,
	})
	s := NewScorer(market, market, ScorerConfig{Policy: policy, Clock: clk})

	got, err := s.Recommend(context.Background(), []string{"ap-south-1", "us-east-1", "eu-west-1"}, "g5.xlarge", nil)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", got)

	_, err = s.Recommend(context.Background(), []string{"ap-south-1", "eu-west-1"}, "g5.xlarge", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecommend_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	clk := clock.NewFakeClock(testNow)
	market := fake.New(fake.Config{Scores: map[string]int{"A": 1}, Clock: clk})
	s := NewScorer(market, market, ScorerConfig{Clock: clk, Metrics: m})

	_, _ = s.Recommend(context.Background(), []string{"A"}, "g5.xlarge", nil)
	_, _ = s.Recommend(context.Background(), nil, "g5.xlarge", nil)

	count := testutil.CollectAndCount(m, "spotorch_region_recommendations_total")
	assert.Equal(t, 2, count)
}
