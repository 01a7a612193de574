// Package fake provides an in-memory capacity market for development mode
// and tests.
package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/provider"
)

// Config seeds the fake market.
type Config struct {
	// Scores maps region to capacity score.
	Scores map[string]int
	// Prices maps region to a spot price observed "now" at construction.
	Prices map[string]float64
	Clock  clock.Clock
}

// Market is a deterministic provider.Market.
type Market struct {
	clock clock.Clock

	mu           sync.Mutex
	scores       map[string]int
	quotes       map[string][]provider.PriceQuote
	scoreErr     error
	priceErr     error
	scoreCalls   int
	historyCalls int
}

var (
	_ provider.Market       = (*Market)(nil)
	_ provider.RegionLister = (*Market)(nil)
)

// New creates a fake market.
func New(cfg Config) *Market {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	m := &Market{
		clock:  clk,
		scores: make(map[string]int),
		quotes: make(map[string][]provider.PriceQuote),
	}
	for region, score := range cfg.Scores {
		m.scores[region] = score
	}
	now := clk.Now()
	for region, price := range cfg.Prices {
		m.quotes[region] = append(m.quotes[region], provider.PriceQuote{Region: region, Price: price, ObservedAt: now})
	}
	return m
}

func (m *Market) Name() string {
	return "fake"
}

// SetScore sets or replaces a region's score.
func (m *Market) SetScore(region string, score int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[region] = score
}

// RemoveScore makes the market stop reporting a region.
func (m *Market) RemoveScore(region string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scores, region)
}

// AddQuote records a price observation.
func (m *Market) AddQuote(region string, price float64, observedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[region] = append(m.quotes[region], provider.PriceQuote{Region: region, Price: price, ObservedAt: observedAt})
}

// FailScores makes subsequent Scores calls return err. Nil clears it.
func (m *Market) FailScores(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoreErr = err
}

// FailHistory makes subsequent History calls return err. Nil clears it.
func (m *Market) FailHistory(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceErr = err
}

// ScoreCalls returns how many batched score calls were made.
func (m *Market) ScoreCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreCalls
}

// HistoryCalls returns how many price history calls were made.
func (m *Market) HistoryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls
}

func (m *Market) Scores(ctx context.Context, resourceType string, regions []string, capacity int) ([]provider.CapacityScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoreCalls++
	if m.scoreErr != nil {
		return nil, m.scoreErr
	}

	now := m.clock.Now()
	var out []provider.CapacityScore
	for _, region := range regions {
		if score, ok := m.scores[region]; ok {
			out = append(out, provider.CapacityScore{Region: region, Score: score, AsOf: now})
		}
	}
	return out, nil
}

func (m *Market) History(ctx context.Context, resourceType, region string, window time.Duration) ([]provider.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if m.priceErr != nil {
		return nil, m.priceErr
	}

	start := m.clock.Now().Add(-window)
	var out []provider.PriceQuote
	for _, q := range m.quotes[region] {
		if !q.ObservedAt.Before(start) {
			out = append(out, q)
		}
	}
	return out, nil
}

// ListRegions returns every region that has a score, sorted.
func (m *Market) ListRegions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regions := make([]string, 0, len(m.scores))
	for r := range m.scores {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions, nil
}
