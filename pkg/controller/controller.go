// Package controller owns the durable provisioning switch. Enabling it
// activates the run trigger and starts a run; disabling it stops every
// active run and optionally tells each worker region to tear down its
// spot instances.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/controlplane/db"
	"github.com/NavarchProject/spotorch/pkg/events"
	"github.com/NavarchProject/spotorch/pkg/metrics"
	"github.com/NavarchProject/spotorch/pkg/paramstore"
	"github.com/NavarchProject/spotorch/pkg/retry"
)

// ErrInvalidAction is returned when a toggle action is neither enable nor
// disable.
var ErrInvalidAction = errors.New("invalid action")

// DefaultStateKey is the parameter holding the provisioning switch.
const DefaultStateKey = "/spotorch/provisioning-enabled"

// Toggle actions.
const (
	ActionEnable  = "enable"
	ActionDisable = "disable"
)

// ParseAction maps a toggle action to the desired switch position.
func ParseAction(action string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionEnable:
		return true, nil
	case ActionDisable:
		return false, nil
	default:
		return false, fmt.Errorf("%w %q, must be %q or %q", ErrInvalidAction, action, ActionEnable, ActionDisable)
	}
}

// Trigger starts runs on a schedule while provisioning is enabled.
type Trigger interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// Engine is the part of the workflow engine the controller drives.
type Engine interface {
	Start(ctx context.Context, excluded []string) (*db.RunRecord, error)
	Stop(ctx context.Context, runID string) (*db.RunRecord, error)
	Active(ctx context.Context) ([]*db.RunRecord, error)
	Regions() []string
}

// Config configures the controller.
type Config struct {
	// StateKey is the parameter store key of the switch.
	StateKey string

	// TeardownRetry bounds each per-region teardown send. MaxAttempts
	// defaults to 1: one notification per region, failures are logged.
	TeardownRetry retry.Config

	// TeardownConcurrency caps in-flight teardown sends. Zero is unbounded.
	TeardownConcurrency int

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		StateKey:            DefaultStateKey,
		TeardownRetry:       teardownRetry(),
		TeardownConcurrency: 8,
	}
}

func teardownRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 1
	return cfg
}

// Controller flips the provisioning switch.
type Controller struct {
	store   paramstore.Store
	trigger Trigger
	engine  Engine
	channel events.Channel
	config  Config
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// inflight tracks background teardown broadcasts.
	inflight sync.WaitGroup
}

// New creates a controller.
func New(store paramstore.Store, trigger Trigger, engine Engine, channel events.Channel, config Config, logger *slog.Logger) *Controller {
	if config.StateKey == "" {
		config.StateKey = DefaultStateKey
	}
	if config.TeardownRetry.MaxAttempts == 0 {
		config.TeardownRetry.MaxAttempts = 1
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.TeardownRetry.Clock == nil {
		config.TeardownRetry.Clock = config.Clock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		trigger: trigger,
		engine:  engine,
		channel: channel,
		config:  config,
		clock:   config.Clock,
		logger:  logger.With(slog.String("component", "controller")),
		metrics: config.Metrics,
	}
}

// Enabled reads the durable switch. A missing parameter reads as disabled.
func (c *Controller) Enabled(ctx context.Context) (bool, error) {
	return readEnabled(ctx, c.store, c.config.StateKey)
}

// readEnabled reads the switch at key. A missing parameter reads as disabled.
func readEnabled(ctx context.Context, store paramstore.Store, key string) (bool, error) {
	value, err := store.Get(ctx, key)
	if errors.Is(err, paramstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read provisioning state: %w", err)
	}
	return value == "true", nil
}

// SetEnabled flips the switch. Repeating a toggle is harmless; disabling
// twice with teardown broadcasts teardown twice.
func (c *Controller) SetEnabled(ctx context.Context, enabled, teardown bool) error {
	if enabled {
		c.metrics.RecordToggle(ActionEnable)
		return c.enable(ctx)
	}
	c.metrics.RecordToggle(ActionDisable)
	return c.disable(ctx, teardown)
}

func (c *Controller) enable(ctx context.Context) error {
	if err := c.store.Put(ctx, c.config.StateKey, "true", true); err != nil {
		return fmt.Errorf("write provisioning state: %w", err)
	}
	if err := c.trigger.Activate(ctx); err != nil {
		return fmt.Errorf("activate trigger: %w", err)
	}

	active, err := c.engine.Active(ctx)
	if err != nil {
		return fmt.Errorf("list active runs: %w", err)
	}
	if len(active) > 0 {
		c.logger.Info("provisioning enabled, run already active", slog.String("run_id", active[0].RunID))
		return nil
	}

	run, err := c.engine.Start(ctx, nil)
	if run == nil {
		return fmt.Errorf("start run: %w", err)
	}
	if err != nil {
		// The run exists and the sweeper resumes it.
		c.logger.Warn("run started but not yet dispatched",
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()),
		)
	}
	c.logger.Info("provisioning enabled", slog.String("run_id", run.RunID), slog.String("status", string(run.Status)))
	return nil
}

func (c *Controller) disable(ctx context.Context, teardown bool) error {
	if err := c.store.Put(ctx, c.config.StateKey, "false", true); err != nil {
		return fmt.Errorf("write provisioning state: %w", err)
	}
	if err := c.trigger.Deactivate(ctx); err != nil {
		return fmt.Errorf("deactivate trigger: %w", err)
	}

	active, err := c.engine.Active(ctx)
	if err != nil {
		return fmt.Errorf("list active runs: %w", err)
	}
	var errs []error
	for _, run := range active {
		if _, err := c.engine.Stop(ctx, run.RunID); err != nil {
			errs = append(errs, fmt.Errorf("stop run %s: %w", run.RunID, err))
		}
	}

	if teardown {
		c.broadcastTeardown(context.WithoutCancel(ctx))
	}

	c.logger.Info("provisioning disabled",
		slog.Int("stopped_runs", len(active)-len(errs)),
		slog.Bool("teardown", teardown),
	)
	return errors.Join(errs...)
}

// broadcastTeardown sends a teardown event to every region in the
// background. Failures are logged and counted, never returned.
func (c *Controller) broadcastTeardown(ctx context.Context) {
	regions := c.engine.Regions()
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		var g errgroup.Group
		if c.config.TeardownConcurrency > 0 {
			g.SetLimit(c.config.TeardownConcurrency)
		}
		for _, region := range regions {
			region := region
			g.Go(func() error {
				err := retry.Do(ctx, c.config.TeardownRetry, func(ctx context.Context) error {
					return c.channel.Send(ctx, events.Event{
						Kind:   events.KindTeardown,
						Region: region,
						Time:   c.clock.Now(),
					})
				})
				c.metrics.RecordTeardown(region, err == nil)
				if err != nil {
					c.logger.Error("teardown broadcast failed",
						slog.String("region", region),
						slog.String("error", err.Error()),
					)
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			c.logger.Warn("teardown broadcast incomplete", slog.String("error", err.Error()))
			return
		}
		c.logger.Info("teardown broadcast complete", slog.Int("regions", len(regions)))
	}()
}

// Wait blocks until in-flight teardown broadcasts finish.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Restore re-activates the trigger when the durable switch says enabled.
// It is called once at process start.
func (c *Controller) Restore(ctx context.Context) error {
	enabled, err := c.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	if err := c.trigger.Activate(ctx); err != nil {
		return fmt.Errorf("activate trigger: %w", err)
	}
	c.logger.Info("restored provisioning trigger")
	return nil
}
