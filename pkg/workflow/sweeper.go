package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NavarchProject/spotorch/pkg/clock"
)

// Sweeper periodically expires overdue capacity requests and resumes runs
// left pending by a downstream failure.
type Sweeper struct {
	engine *Engine
	clock  clock.Clock
	logger *slog.Logger
	config SweeperConfig

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SweeperConfig configures the sweeper.
type SweeperConfig struct {
	// Interval is how often to sweep. Pending runs not updated for one
	// interval are resumed. Default: 1 minute.
	Interval time.Duration

	// Clock is the clock to use for time operations. If nil, uses real time.
	Clock clock.Clock
}

// DefaultSweeperConfig returns sensible defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: time.Minute,
	}
}

// NewSweeper creates a sweeper for engine.
func NewSweeper(engine *Engine, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval == 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		engine: engine,
		clock:  clk,
		logger: logger.With(slog.String("component", "sweeper")),
		config: config,
	}
}

// Start begins sweeping in the background.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("sweeper started", slog.Duration("interval", s.config.Interval))
}

// Stop stops the sweeper and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.started = false

	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.engine.ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("failed to expire overdue runs", slog.String("error", err.Error()))
	}
	if expired > 0 {
		s.logger.Info("expired overdue capacity requests", slog.Int("count", expired))
	}

	resumed, err := s.engine.ResumeStale(ctx, s.config.Interval)
	if err != nil {
		s.logger.Error("failed to resume pending runs", slog.String("error", err.Error()))
	}
	if resumed > 0 {
		s.logger.Info("resumed pending runs", slog.Int("count", resumed))
	}
}
