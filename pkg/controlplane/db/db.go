package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when a run or token does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConcurrentUpdate is returned when a conditional write lost to
	// another writer. The caller re-reads and re-evaluates.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending             RunStatus = "pending"
	RunStatusAwaitingFulfillment RunStatus = "awaiting_fulfillment"
	RunStatusSucceeded           RunStatus = "succeeded"
	RunStatusFailed              RunStatus = "failed"
	RunStatusStopped             RunStatus = "stopped"
)

// ActiveStatuses are the statuses a run can still leave.
var ActiveStatuses = []RunStatus{RunStatusPending, RunStatusAwaitingFulfillment}

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []RunStatus{
	RunStatusPending,
	RunStatusAwaitingFulfillment,
	RunStatusSucceeded,
	RunStatusFailed,
	RunStatusStopped,
}

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusStopped
}

// IsActive reports whether the run is pending or awaiting fulfillment.
func (s RunStatus) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

// ParseRunStatus parses a status name such as "pending".
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(s)
	if !slices.Contains(AllStatuses, status) {
		return "", fmt.Errorf("unknown run status %q", s)
	}
	return status, nil
}

// AttemptOutcome records how a capacity request to one region ended.
type AttemptOutcome string

const (
	OutcomePending      AttemptOutcome = ""
	OutcomeFulfilled    AttemptOutcome = "fulfilled"
	OutcomeNotFulfilled AttemptOutcome = "not_fulfilled"
	OutcomeTimedOut     AttemptOutcome = "timed_out"
	OutcomeStopped      AttemptOutcome = "stopped"
)

// Attempt is one capacity request sent to a region.
type Attempt struct {
	Region     string         `dynamodbav:"region"`
	Outcome    AttemptOutcome `dynamodbav:"outcome,omitempty"`
	Operation  string         `dynamodbav:"operation,omitempty"`
	StartedAt  time.Time      `dynamodbav:"started_at"`
	ResolvedAt time.Time      `dynamodbav:"resolved_at,omitempty"`
}

// RunRecord is the durable state of one workflow run.
type RunRecord struct {
	RunID        string    `dynamodbav:"run_id"`
	Status       RunStatus `dynamodbav:"status"`
	ResourceType string    `dynamodbav:"resource_type"`

	// ExcludedRegions only grows during a run.
	ExcludedRegions []string `dynamodbav:"excluded_regions,omitempty"`
	CandidateRegion string   `dynamodbav:"candidate_region,omitempty"`
	// TokenDigest identifies the outstanding callback token. Empty unless
	// the run is awaiting fulfillment.
	TokenDigest string    `dynamodbav:"token_digest,omitempty"`
	Attempts    []Attempt `dynamodbav:"attempts,omitempty"`
	Reason      string    `dynamodbav:"reason,omitempty"`

	// Version is incremented by every successful write.
	Version       int64     `dynamodbav:"version"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
	AwaitingSince time.Time `dynamodbav:"awaiting_since,omitempty"`
}

// Clone returns a deep copy.
func (r *RunRecord) Clone() *RunRecord {
	c := *r
	c.ExcludedRegions = slices.Clone(r.ExcludedRegions)
	c.Attempts = slices.Clone(r.Attempts)
	return &c
}

// CurrentAttempt returns the most recent attempt, or nil.
func (r *RunRecord) CurrentAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// TokenRecord indexes a callback token digest to the run it was issued for.
// Records are never deleted; the run's TokenDigest decides whether the
// token is still outstanding.
type TokenRecord struct {
	Digest   string    `dynamodbav:"digest"`
	RunID    string    `dynamodbav:"run_id"`
	Region   string    `dynamodbav:"region"`
	IssuedAt time.Time `dynamodbav:"issued_at"`
}

// DB is the interface for the run store of record.
type DB interface {
	// CreateRun stores a new run at version 1.
	CreateRun(ctx context.Context, record *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	// UpdateRun writes record if the stored version equals record.Version,
	// then sets record.Version to the new version. A version mismatch
	// returns ErrConcurrentUpdate.
	UpdateRun(ctx context.Context, record *RunRecord) error
	// ListRuns returns runs in any of the given statuses, or all runs when
	// none are given, oldest first.
	ListRuns(ctx context.Context, statuses ...RunStatus) ([]*RunRecord, error)

	PutToken(ctx context.Context, record *TokenRecord) error
	GetToken(ctx context.Context, digest string) (*TokenRecord, error)

	Close() error
}

func sortRuns(runs []*RunRecord) {
	slices.SortFunc(runs, func(a, b *RunRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.RunID < b.RunID {
			return -1
		}
		if a.RunID > b.RunID {
			return 1
		}
		return 0
	})
}
