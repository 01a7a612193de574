// Package provider defines the capacity-score and price-history sources the
// region scorer consults.
package provider

import (
	"context"
	"time"
)

// CapacityScore is a provider's estimate of how likely a capacity request
// for one resource type is to succeed in a region. Scores are only
// comparable within the batch they were fetched in.
type CapacityScore struct {
	Region string
	Score  int
	AsOf   time.Time
}

// PriceQuote is one observed spot price for a resource type in a region.
type PriceQuote struct {
	Region     string
	Price      float64
	ObservedAt time.Time
}

// ScoreProvider returns capacity scores for a batch of regions.
type ScoreProvider interface {
	Name() string
	// Scores fetches scores for every region in one call. Regions the
	// provider has no opinion on are omitted from the result.
	Scores(ctx context.Context, resourceType string, regions []string, capacity int) ([]CapacityScore, error)
}

// PriceHistoryProvider returns recent spot prices for a single region.
type PriceHistoryProvider interface {
	// History returns quotes observed during the trailing window, in any order.
	History(ctx context.Context, resourceType, region string, window time.Duration) ([]PriceQuote, error)
}

// Market is a provider that can answer both questions.
type Market interface {
	ScoreProvider
	PriceHistoryProvider
}

// RegionLister is an optional interface for markets that can enumerate the
// regions they serve. It is used when no region universe is configured.
type RegionLister interface {
	ListRegions(ctx context.Context) ([]string, error)
}
