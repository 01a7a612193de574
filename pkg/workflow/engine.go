// Package workflow drives spot capacity runs through region selection,
// suspension on a callback token, and failover to the next region.
//
// A run moves pending -> awaiting_fulfillment -> succeeded, or back to
// pending when a region reports it could not fulfill the request, or to
// failed once every region has been excluded. Stop moves an active run to
// stopped. Every transition is a compare-and-swap on the stored run, so
// concurrent callers never apply two transitions from the same state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/controlplane/db"
	"github.com/NavarchProject/spotorch/pkg/events"
	"github.com/NavarchProject/spotorch/pkg/metrics"
	"github.com/NavarchProject/spotorch/pkg/region"
)

// ErrRunNotFound is returned for operations on a run id that does not exist.
var ErrRunNotFound = errors.New("run not found")

// ReasonNoCandidates is recorded on runs that exhausted the region universe.
const ReasonNoCandidates = "no candidate regions left"

// Recommender picks the next region to try.
type Recommender interface {
	Recommend(ctx context.Context, candidates []string, resourceType string, excluded []string) (string, error)
}

// Outcome is what a worker region reports for a capacity request.
type Outcome int

const (
	Fulfilled Outcome = iota
	NotFulfilled
)

func (o Outcome) String() string {
	switch o {
	case Fulfilled:
		return "fulfilled"
	case NotFulfilled:
		return "not_fulfilled"
	default:
		return "unknown"
	}
}

// ResolveResult classifies a Resolve call.
type ResolveResult string

const (
	// Resolved means the token was outstanding and has been consumed.
	Resolved ResolveResult = "resolved"
	// AlreadyResolved means the token belongs to a run but is no longer
	// outstanding. Nothing changed.
	AlreadyResolved ResolveResult = "already_resolved"
	// UnknownToken means no run was ever issued the token.
	UnknownToken ResolveResult = "unknown_token"
)

// Detail is what the worker reported alongside its outcome.
type Detail struct {
	Region    string
	Operation string
}

// Config configures the engine.
type Config struct {
	// Regions is the universe of regions a run may try.
	Regions []string
	// ResourceType is requested from every region.
	ResourceType string
	// FulfillmentTimeout bounds how long a run awaits one region before the
	// attempt counts as not fulfilled. Default 15m.
	FulfillmentTimeout time.Duration
	// MaxConflictRetries bounds re-reads after losing a compare-and-swap.
	// Default 5.
	MaxConflictRetries int
	Clock              clock.Clock
	Metrics            *metrics.Metrics
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		FulfillmentTimeout: 15 * time.Minute,
		MaxConflictRetries: 5,
	}
}

// Engine runs workflow transitions against the run store.
type Engine struct {
	db      db.DB
	scorer  Recommender
	channel events.Channel
	config  Config
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine.
func NewEngine(database db.DB, scorer Recommender, channel events.Channel, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.FulfillmentTimeout <= 0 {
		config.FulfillmentTimeout = defaults.FulfillmentTimeout
	}
	if config.MaxConflictRetries <= 0 {
		config.MaxConflictRetries = defaults.MaxConflictRetries
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	config.Regions = slices.Clone(config.Regions)
	slices.Sort(config.Regions)
	config.Regions = slices.Compact(config.Regions)

	return &Engine{
		db:      database,
		scorer:  scorer,
		channel: channel,
		config:  config,
		clock:   clk,
		logger:  logger.With(slog.String("component", "workflow")),
		metrics: config.Metrics,
	}
}

// Regions returns the region universe.
func (e *Engine) Regions() []string {
	return slices.Clone(e.config.Regions)
}

// ResourceType returns the resource type runs request.
func (e *Engine) ResourceType() string {
	return e.config.ResourceType
}

// Start creates a run that will never try the excluded regions and
// advances it. The run is returned even when advancing failed; it is then
// left pending for Resume.
func (e *Engine) Start(ctx context.Context, excluded []string) (*db.RunRecord, error) {
	now := e.clock.Now()
	run := &db.RunRecord{
		RunID:           uuid.NewString(),
		Status:          db.RunStatusPending,
		ResourceType:    e.config.ResourceType,
		ExcludedRegions: uniqueSorted(excluded),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.db.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	e.metrics.RecordTransition(string(db.RunStatusPending))
	e.logger.Info("run started",
		slog.String("run_id", run.RunID),
		slog.Any("excluded_regions", run.ExcludedRegions),
	)

	advanced, err := e.advance(ctx, run.RunID)
	if advanced != nil {
		run = advanced
	}
	return run, err
}

// Resume advances a pending run. Runs in any other status are returned
// unchanged.
func (e *Engine) Resume(ctx context.Context, runID string) (*db.RunRecord, error) {
	run, err := e.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != db.RunStatusPending {
		return run, nil
	}
	return e.advance(ctx, runID)
}

// advance takes a pending run to awaiting_fulfillment by recommending a
// region and sending it a capacity request, or to failed when no region is
// left. The run record is written before the request is sent so a worker
// reply can never arrive for a token the store does not know.
func (e *Engine) advance(ctx context.Context, runID string) (*db.RunRecord, error) {
	for i := 0; i < e.config.MaxConflictRetries; i++ {
		run, err := e.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != db.RunStatusPending {
			return run, nil
		}

		target, err := e.scorer.Recommend(ctx, e.config.Regions, run.ResourceType, run.ExcludedRegions)
		if errors.Is(err, region.ErrNotFound) {
			now := e.clock.Now()
			run.Status = db.RunStatusFailed
			run.Reason = ReasonNoCandidates
			run.CandidateRegion = ""
			run.UpdatedAt = now
			if err := e.db.UpdateRun(ctx, run); err != nil {
				if errors.Is(err, db.ErrConcurrentUpdate) {
					continue
				}
				return nil, fmt.Errorf("fail run %s: %w", runID, err)
			}
			e.metrics.RecordTransition(string(db.RunStatusFailed))
			e.logger.Warn("run failed",
				slog.String("run_id", runID),
				slog.String("reason", ReasonNoCandidates),
				slog.Any("excluded_regions", run.ExcludedRegions),
			)
			return run, nil
		}
		if err != nil {
			return run, fmt.Errorf("recommend region for run %s: %w", runID, err)
		}

		token, digest, err := newToken()
		if err != nil {
			return run, err
		}

		now := e.clock.Now()
		run.Status = db.RunStatusAwaitingFulfillment
		run.CandidateRegion = target
		run.TokenDigest = digest
		run.AwaitingSince = now
		run.UpdatedAt = now
		run.Attempts = append(run.Attempts, db.Attempt{Region: target, StartedAt: now})
		if err := e.db.UpdateRun(ctx, run); err != nil {
			if errors.Is(err, db.ErrConcurrentUpdate) {
				continue
			}
			return nil, fmt.Errorf("persist awaiting run %s: %w", runID, err)
		}

		if err := e.db.PutToken(ctx, &db.TokenRecord{Digest: digest, RunID: runID, Region: target, IssuedAt: now}); err != nil {
			return e.revert(ctx, runID, digest), fmt.Errorf("index callback token for run %s: %w", runID, err)
		}
		e.metrics.RecordTokenMinted()

		err = e.channel.Send(ctx, events.Event{
			Kind:         events.KindCapacityRequest,
			Region:       target,
			Token:        token,
			RunID:        runID,
			ResourceType: run.ResourceType,
			Time:         now,
		})
		if err != nil {
			return e.revert(ctx, runID, digest), fmt.Errorf("send capacity request for run %s to %s: %w", runID, target, err)
		}

		e.metrics.RecordTransition(string(db.RunStatusAwaitingFulfillment))
		e.logger.Info("capacity requested",
			slog.String("run_id", runID),
			slog.String("region", target),
			slog.Int("attempt", len(run.Attempts)),
		)
		return run, nil
	}
	return nil, fmt.Errorf("advance run %s: %w", runID, db.ErrConcurrentUpdate)
}

// revert undoes an awaiting transition whose capacity request could not be
// delivered. It only applies while digest is still outstanding; a worker
// that got the request anyway and already answered wins.
func (e *Engine) revert(ctx context.Context, runID, digest string) *db.RunRecord {
	for i := 0; i < e.config.MaxConflictRetries; i++ {
		run, err := e.Get(ctx, runID)
		if err != nil {
			break
		}
		if run.Status != db.RunStatusAwaitingFulfillment || run.TokenDigest != digest {
			return run
		}
		run.Status = db.RunStatusPending
		run.TokenDigest = ""
		run.CandidateRegion = ""
		run.AwaitingSince = time.Time{}
		run.UpdatedAt = e.clock.Now()
		run.Attempts = run.Attempts[:len(run.Attempts)-1]
		err = e.db.UpdateRun(ctx, run)
		if err == nil {
			return run
		}
		if !errors.Is(err, db.ErrConcurrentUpdate) {
			e.logger.Error("failed to revert run after send failure",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
			break
		}
	}
	// Left awaiting; ExpireOverdue fails the attempt over once it times out.
	run, _ := e.Get(ctx, runID)
	return run
}

// Resolve consumes a callback token. Fulfilled completes the run;
// NotFulfilled excludes the region and immediately tries the next one. A
// failure while trying the next region leaves the run pending and is only
// logged, because the token itself was consumed.
func (e *Engine) Resolve(ctx context.Context, token string, outcome Outcome, detail Detail) (ResolveResult, error) {
	if token == "" {
		return UnknownToken, nil
	}
	digest := Digest(token)

	tok, err := e.db.GetToken(ctx, digest)
	if errors.Is(err, db.ErrNotFound) {
		return UnknownToken, nil
	}
	if err != nil {
		return "", fmt.Errorf("look up callback token: %w", err)
	}

	attemptOutcome := db.OutcomeFulfilled
	if outcome == NotFulfilled {
		attemptOutcome = db.OutcomeNotFulfilled
	}
	if detail.Region != "" && detail.Region != tok.Region {
		e.logger.Warn("worker reported a different region than requested",
			slog.String("run_id", tok.RunID),
			slog.String("requested", tok.Region),
			slog.String("reported", detail.Region),
		)
	}
	return e.consume(ctx, tok.RunID, digest, attemptOutcome, detail.Operation)
}

// consume applies the resolution of the outstanding token identified by
// digest, then re-advances the run unless it succeeded.
func (e *Engine) consume(ctx context.Context, runID, digest string, outcome db.AttemptOutcome, operation string) (ResolveResult, error) {
	for i := 0; i < e.config.MaxConflictRetries; i++ {
		run, err := e.db.GetRun(ctx, runID)
		if errors.Is(err, db.ErrNotFound) {
			return UnknownToken, nil
		}
		if err != nil {
			return "", fmt.Errorf("get run %s: %w", runID, err)
		}
		if run.Status != db.RunStatusAwaitingFulfillment || run.TokenDigest != digest {
			e.logger.Info("stale callback token",
				slog.String("run_id", runID),
				slog.String("status", string(run.Status)),
			)
			return AlreadyResolved, nil
		}

		now := e.clock.Now()
		candidate := run.CandidateRegion
		if attempt := run.CurrentAttempt(); attempt != nil {
			attempt.Outcome = outcome
			attempt.Operation = operation
			attempt.ResolvedAt = now
		}
		run.TokenDigest = ""
		run.AwaitingSince = time.Time{}
		run.UpdatedAt = now

		if outcome == db.OutcomeFulfilled {
			run.Status = db.RunStatusSucceeded
			run.Reason = fmt.Sprintf("capacity fulfilled in %s", candidate)
		} else {
			run.Status = db.RunStatusPending
			run.CandidateRegion = ""
			if !slices.Contains(run.ExcludedRegions, candidate) {
				run.ExcludedRegions = append(run.ExcludedRegions, candidate)
			}
		}

		if err := e.db.UpdateRun(ctx, run); err != nil {
			if errors.Is(err, db.ErrConcurrentUpdate) {
				continue
			}
			return "", fmt.Errorf("resolve run %s: %w", runID, err)
		}
		e.metrics.RecordTransition(string(run.Status))
		e.logger.Info("capacity request resolved",
			slog.String("run_id", runID),
			slog.String("region", candidate),
			slog.String("outcome", string(outcome)),
		)

		if run.Status == db.RunStatusPending {
			if _, err := e.advance(ctx, runID); err != nil {
				e.logger.Warn("failover deferred, run left pending",
					slog.String("run_id", runID),
					slog.String("error", err.Error()),
				)
			}
		}
		return Resolved, nil
	}
	return "", fmt.Errorf("resolve run %s: %w", runID, db.ErrConcurrentUpdate)
}

// Stop moves an active run to stopped and invalidates its outstanding
// token. Stopping a terminal run is a no-op that returns the run as is.
func (e *Engine) Stop(ctx context.Context, runID string) (*db.RunRecord, error) {
	for i := 0; i < e.config.MaxConflictRetries; i++ {
		run, err := e.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status.IsTerminal() {
			return run, nil
		}

		now := e.clock.Now()
		if run.Status == db.RunStatusAwaitingFulfillment {
			if attempt := run.CurrentAttempt(); attempt != nil && attempt.Outcome == db.OutcomePending {
				attempt.Outcome = db.OutcomeStopped
				attempt.ResolvedAt = now
			}
		}
		run.Status = db.RunStatusStopped
		run.TokenDigest = ""
		run.AwaitingSince = time.Time{}
		run.Reason = "stopped"
		run.UpdatedAt = now

		if err := e.db.UpdateRun(ctx, run); err != nil {
			if errors.Is(err, db.ErrConcurrentUpdate) {
				continue
			}
			return nil, fmt.Errorf("stop run %s: %w", runID, err)
		}
		e.metrics.RecordTransition(string(db.RunStatusStopped))
		e.logger.Info("run stopped",
			slog.String("run_id", runID),
			slog.String("candidate_region", run.CandidateRegion),
		)
		return run, nil
	}
	return nil, fmt.Errorf("stop run %s: %w", runID, db.ErrConcurrentUpdate)
}

// ExpireOverdue treats every attempt awaiting longer than the fulfillment
// timeout as not fulfilled and fails the run over. It returns how many
// attempts were expired.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	runs, err := e.List(ctx, db.RunStatusAwaitingFulfillment)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	expired := 0
	var errs []error
	for _, run := range runs {
		if run.AwaitingSince.IsZero() || now.Sub(run.AwaitingSince) < e.config.FulfillmentTimeout {
			continue
		}
		e.logger.Warn("capacity request timed out",
			slog.String("run_id", run.RunID),
			slog.String("region", run.CandidateRegion),
			slog.Duration("waited", now.Sub(run.AwaitingSince)),
		)
		result, err := e.consume(ctx, run.RunID, run.TokenDigest, db.OutcomeTimedOut, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if result == Resolved {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

// ResumeStale resumes pending runs not updated within olderThan. It returns
// how many were resumed without error.
func (e *Engine) ResumeStale(ctx context.Context, olderThan time.Duration) (int, error) {
	runs, err := e.List(ctx, db.RunStatusPending)
	if err != nil {
		return 0, err
	}

	cutoff := e.clock.Now().Add(-olderThan)
	resumed := 0
	var errs []error
	for _, run := range runs {
		if run.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := e.Resume(ctx, run.RunID); err != nil {
			errs = append(errs, err)
			continue
		}
		resumed++
	}
	return resumed, errors.Join(errs...)
}

// Get returns a run by id.
func (e *Engine) Get(ctx context.Context, runID string) (*db.RunRecord, error) {
	run, err := e.db.GetRun(ctx, runID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// List returns runs in any of statuses, or all runs.
func (e *Engine) List(ctx context.Context, statuses ...db.RunStatus) ([]*db.RunRecord, error) {
	runs, err := e.db.ListRuns(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Active returns pending and awaiting runs.
func (e *Engine) Active(ctx context.Context) ([]*db.RunRecord, error) {
	return e.List(ctx, db.ActiveStatuses...)
}

func uniqueSorted(regions []string) []string {
	if len(regions) == 0 {
		return nil
	}
	out := slices.Clone(regions)
	slices.Sort(out)
	return slices.Compact(out)
}
