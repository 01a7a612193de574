// Package router validates inbound worker-region events and forwards them
// to the workflow engine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NavarchProject/spotorch/pkg/events"
	"github.com/NavarchProject/spotorch/pkg/metrics"
	"github.com/NavarchProject/spotorch/pkg/workflow"
)

// ErrMalformed is returned for events that fail validation.
var ErrMalformed = errors.New("malformed capacity event")

// DefaultSourceSuffix is the namespace worker events must be published under.
const DefaultSourceSuffix = ".spotworker"

// Result classifies a routed event.
type Result string

const (
	Resolved        Result = "resolved"
	AlreadyResolved Result = "already_resolved"
	UnknownToken    Result = "unknown_token"
	Malformed       Result = "malformed"
)

// Resolver consumes callback tokens.
type Resolver interface {
	Resolve(ctx context.Context, token string, outcome workflow.Outcome, detail workflow.Detail) (workflow.ResolveResult, error)
}

// Router is a validating dispatcher. It holds no orchestration policy.
type Router struct {
	resolver     Resolver
	sourceSuffix string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Config configures the router.
type Config struct {
	// SourceSuffix must terminate every event source. Default ".spotworker".
	SourceSuffix string
	Metrics      *metrics.Metrics
}

// New creates a router.
func New(resolver Resolver, cfg Config, logger *slog.Logger) *Router {
	if cfg.SourceSuffix == "" {
		cfg.SourceSuffix = DefaultSourceSuffix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver:     resolver,
		sourceSuffix: cfg.SourceSuffix,
		logger:       logger.With(slog.String("component", "router")),
		metrics:      cfg.Metrics,
	}
}

// Route validates ev and resolves its token. Validation failures return
// Malformed with an error wrapping ErrMalformed. Stale and unknown tokens
// are results, not errors. Any other error comes from the engine.
func (r *Router) Route(ctx context.Context, ev events.WorkerEvent) (Result, error) {
	result, err := r.route(ctx, ev)
	if result != "" {
		r.metrics.RecordRoute(string(result))
	}
	return result, err
}

func (r *Router) route(ctx context.Context, ev events.WorkerEvent) (Result, error) {
	if !strings.HasSuffix(ev.Source, r.sourceSuffix) {
		return Malformed, fmt.Errorf("%w: invalid source %q, expected *%s", ErrMalformed, ev.Source, r.sourceSuffix)
	}

	var outcome workflow.Outcome
	switch ev.DetailType {
	case events.DetailTypeFulfilled:
		outcome = workflow.Fulfilled
	case events.DetailTypeNotFulfilled:
		outcome = workflow.NotFulfilled
	default:
		return Malformed, fmt.Errorf("%w: invalid detail-type %q, expected %s or %s",
			ErrMalformed, ev.DetailType, events.DetailTypeFulfilled, events.DetailTypeNotFulfilled)
	}

	if ev.Detail.TaskToken == "" {
		return Malformed, fmt.Errorf("%w: missing TaskToken in event detail", ErrMalformed)
	}

	res, err := r.resolver.Resolve(ctx, ev.Detail.TaskToken, outcome, workflow.Detail{
		Region:    ev.Detail.Region,
		Operation: ev.Detail.Operation,
	})
	if err != nil {
		return "", err
	}

	switch res {
	case workflow.Resolved:
		return Resolved, nil
	case workflow.AlreadyResolved:
		r.logger.Info("duplicate or stale capacity event",
			slog.String("source", ev.Source),
			slog.String("region", ev.Detail.Region),
		)
		return AlreadyResolved, nil
	case workflow.UnknownToken:
		r.logger.Info("capacity event for unknown token",
			slog.String("source", ev.Source),
			slog.String("detail_type", ev.DetailType),
			slog.String("region", ev.Detail.Region),
		)
		return UnknownToken, nil
	default:
		return "", fmt.Errorf("unexpected resolve result %q", res)
	}
}
