package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/controlplane/db"
	"github.com/NavarchProject/spotorch/pkg/paramstore"
)

// RunStarter is what ScheduleTrigger needs from the workflow engine.
type RunStarter interface {
	Start(ctx context.Context, excluded []string) (*db.RunRecord, error)
	Active(ctx context.Context) ([]*db.RunRecord, error)
}

// ScheduleConfig configures a ScheduleTrigger.
type ScheduleConfig struct {
	// Interval between checks. Default 10m.
	Interval time.Duration
	// StateKey is the parameter store key of the switch. Default
	// DefaultStateKey.
	StateKey string
	Clock    clock.Clock
}

// ScheduleTrigger starts a run on every tick when the durable switch reads
// enabled and no run is active. It ticks only between Activate and
// Deactivate. The switch is re-read on every tick.
type ScheduleTrigger struct {
	engine   RunStarter
	store    paramstore.Store
	stateKey string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduleTrigger creates an inactive schedule trigger.
func NewScheduleTrigger(engine RunStarter, store paramstore.Store, config ScheduleConfig, logger *slog.Logger) *ScheduleTrigger {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	if config.StateKey == "" {
		config.StateKey = DefaultStateKey
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleTrigger{
		engine:   engine,
		store:    store,
		stateKey: config.StateKey,
		interval: config.Interval,
		clock:    config.Clock,
		logger:   logger.With(slog.String("component", "schedule-trigger")),
	}
}

// Activate starts the ticker. It is a no-op when already active.
func (t *ScheduleTrigger) Activate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.wg.Add(1)
	go t.loop(loopCtx)

	t.logger.Info("schedule trigger activated", slog.Duration("interval", t.interval))
	return nil
}

// Deactivate stops the ticker and waits for an in-progress tick.
func (t *ScheduleTrigger) Deactivate(ctx context.Context) error {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	t.wg.Wait()

	t.logger.Info("schedule trigger deactivated")
	return nil
}

// Active reports whether the ticker is running.
func (t *ScheduleTrigger) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *ScheduleTrigger) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			t.tick(ctx)
		}
	}
}

func (t *ScheduleTrigger) tick(ctx context.Context) {
	enabled, err := readEnabled(ctx, t.store, t.stateKey)
	if err != nil {
		t.logger.Error("failed to read provisioning state", slog.String("error", err.Error()))
		return
	}
	if !enabled {
		t.logger.Debug("provisioning disabled, skipping scheduled start")
		return
	}

	active, err := t.engine.Active(ctx)
	if err != nil {
		t.logger.Error("failed to list active runs", slog.String("error", err.Error()))
		return
	}
	if len(active) > 0 {
		return
	}

	run, err := t.engine.Start(ctx, nil)
	if err != nil {
		attrs := []any{slog.String("error", err.Error())}
		if run != nil {
			attrs = append(attrs, slog.String("run_id", run.RunID))
		}
		t.logger.Warn("scheduled run did not dispatch", attrs...)
		return
	}
	t.logger.Info("scheduled run started",
		slog.String("run_id", run.RunID),
		slog.String("candidate_region", run.CandidateRegion),
	)
}
