package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NavarchProject/spotorch/pkg/clock"
)

func TestMarket_Scores(t *testing.T) {
	m := New(Config{Scores: map[string]int{"us-east-1": 9, "eu-west-1": 3}})
	assert.Equal(t, "fake", m.Name())

	got, err := m.Scores(context.Background(), "p5.48xlarge", []string{"us-east-1", "eu-west-1", "ap-south-1"}, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "us-east-1", got[0].Region)
	assert.Equal(t, 9, got[0].Score)
	assert.Equal(t, 1, m.ScoreCalls())
}

func TestMarket_ScoreError(t *testing.T) {
	m := New(Config{Scores: map[string]int{"us-east-1": 9}})
	m.FailScores(errors.New("throttled"))

	_, err := m.Scores(context.Background(), "x", []string{"us-east-1"}, 1)
	assert.EqualError(t, err, "throttled")

	m.FailScores(nil)
	_, err = m.Scores(context.Background(), "x", []string{"us-east-1"}, 1)
	assert.NoError(t, err)
}

func TestMarket_HistoryWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	m := New(Config{Clock: clk})

	m.AddQuote("us-east-1", 4.0, start.Add(-2*time.Hour))
	m.AddQuote("us-east-1", 3.5, start.Add(-30*time.Minute))

	got, err := m.History(context.Background(), "x", "us-east-1", time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3.5, got[0].Price)
	assert.Equal(t, 1, m.HistoryCalls())
}

func TestMarket_ListRegions(t *testing.T) {
	m := New(Config{Scores: map[string]int{"us-west-2": 1, "eu-west-1": 2}})
	regions, err := m.ListRegions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1", "us-west-2"}, regions)
}
