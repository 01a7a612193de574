package controlplane

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/controlplane/db"
)

// RunCollector exports run store gauges. It reads the store on every
// scrape.
type RunCollector struct {
	db    db.DB
	clock clock.Clock

	runsTotal      *prometheus.GaugeVec
	oldestAwaiting prometheus.Gauge
	attemptsTotal  *prometheus.GaugeVec
}

// NewRunCollector creates a collector over database. A nil clock uses real
// time.
func NewRunCollector(database db.DB, clk clock.Clock) *RunCollector {
	if clk == nil {
		clk = clock.Real()
	}
	return &RunCollector{
		db:    database,
		clock: clk,
		runsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotorch_runs",
				Help: "Number of workflow runs by status",
			},
			[]string{"status"},
		),
		oldestAwaiting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotorch_oldest_awaiting_seconds",
				Help: "Age of the longest outstanding capacity request (0 when none)",
			},
		),
		attemptsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotorch_region_attempts",
				Help: "Capacity request attempts recorded on stored runs by region and outcome",
			},
			[]string{"region", "outcome"},
		),
	}
}

// Describe implements prometheus.Collector.
func (rc *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	rc.runsTotal.Describe(ch)
	rc.oldestAwaiting.Describe(ch)
	rc.attemptsTotal.Describe(ch)
}

// Collect implements prometheus.Collector and updates metrics from the database.
func (rc *RunCollector) Collect(ch chan<- prometheus.Metric) {
	rc.collectRunMetrics(context.Background())

	rc.runsTotal.Collect(ch)
	rc.oldestAwaiting.Collect(ch)
	rc.attemptsTotal.Collect(ch)
}

func (rc *RunCollector) collectRunMetrics(ctx context.Context) {
	runs, err := rc.db.ListRuns(ctx)
	if err != nil {
		return
	}

	statusCounts := make(map[db.RunStatus]float64, len(db.AllStatuses))
	for _, status := range db.AllStatuses {
		statusCounts[status] = 0
	}
	type attemptKey struct{ region, outcome string }
	attemptCounts := make(map[attemptKey]float64)
	var oldest float64

	now := rc.clock.Now()
	for _, run := range runs {
		statusCounts[run.Status]++
		if run.Status == db.RunStatusAwaitingFulfillment && !run.AwaitingSince.IsZero() {
			if age := now.Sub(run.AwaitingSince).Seconds(); age > oldest {
				oldest = age
			}
		}
		for _, a := range run.Attempts {
			outcome := string(a.Outcome)
			if a.Outcome == db.OutcomePending {
				outcome = "pending"
			}
			attemptCounts[attemptKey{a.Region, outcome}]++
		}
	}

	rc.runsTotal.Reset()
	for status, count := range statusCounts {
		rc.runsTotal.WithLabelValues(string(status)).Set(count)
	}

	rc.oldestAwaiting.Set(oldest)

	rc.attemptsTotal.Reset()
	for key, count := range attemptCounts {
		rc.attemptsTotal.WithLabelValues(key.region, key.outcome).Set(count)
	}
}
