package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NavarchProject/spotorch/pkg/events"
	"github.com/NavarchProject/spotorch/pkg/workflow"
)

type resolveCall struct {
	token   string
	outcome workflow.Outcome
	detail  workflow.Detail
}

type fakeResolver struct {
	calls  []resolveCall
	result workflow.ResolveResult
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, token string, outcome workflow.Outcome, detail workflow.Detail) (workflow.ResolveResult, error) {
	f.calls = append(f.calls, resolveCall{token, outcome, detail})
	return f.result, f.err
}

func event(source, detailType, token string) events.WorkerEvent {
	return events.WorkerEvent{
		Source:     source,
		DetailType: detailType,
		Detail:     events.WorkerDetail{TaskToken: token, Region: "us-west-2", Operation: "scale_out"},
	}
}

func TestRoute_Validation(t *testing.T) {
	tests := []struct {
		name string
		ev   events.WorkerEvent
	}{
		{"wrong source", event("acme.spotorchestrator", events.DetailTypeFulfilled, "tok")},
		{"empty source", event("", events.DetailTypeFulfilled, "tok")},
		{"suffix only inside", event("acme.spotworker.evil", events.DetailTypeFulfilled, "tok")},
		{"wrong detail-type", event("acme.spotworker", "SpotInstanceTeardown", "tok")},
		{"missing token", event("acme.spotworker", events.DetailTypeNotFulfilled, "")},
		// Source is checked before detail-type and token.
		{"everything wrong", event("nope", "nope", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{result: workflow.Resolved}
			r := New(resolver, Config{}, nil)

			result, err := r.Route(context.Background(), tt.ev)
			assert.Equal(t, Malformed, result)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Empty(t, resolver.calls, "malformed events never reach the engine")
		})
	}
}

func TestRoute_ValidationOrder(t *testing.T) {
	r := New(&fakeResolver{}, Config{}, nil)

	_, err := r.Route(context.Background(), event("nope", "nope", ""))
	assert.Contains(t, err.Error(), "invalid source")

	_, err = r.Route(context.Background(), event("acme.spotworker", "nope", ""))
	assert.Contains(t, err.Error(), "invalid detail-type")

	_, err = r.Route(context.Background(), event("acme.spotworker", events.DetailTypeFulfilled, ""))
	assert.Contains(t, err.Error(), "TaskToken")
}

func TestRoute_Forwards(t *testing.T) {
	tests := []struct {
		name        string
		detailType  string
		resolved    workflow.ResolveResult
		wantOutcome workflow.Outcome
		want        Result
	}{
		{"fulfilled", events.DetailTypeFulfilled, workflow.Resolved, workflow.Fulfilled, Resolved},
		{"not fulfilled", events.DetailTypeNotFulfilled, workflow.Resolved, workflow.NotFulfilled, Resolved},
		{"duplicate", events.DetailTypeFulfilled, workflow.AlreadyResolved, workflow.Fulfilled, AlreadyResolved},
		{"unknown", events.DetailTypeNotFulfilled, workflow.UnknownToken, workflow.NotFulfilled, UnknownToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{result: tt.resolved}
			r := New(resolver, Config{}, nil)

			result, err := r.Route(context.Background(), event("acme.spotworker", tt.detailType, "tok"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)

			require.Len(t, resolver.calls, 1)
			assert.Equal(t, "tok", resolver.calls[0].token)
			assert.Equal(t, tt.wantOutcome, resolver.calls[0].outcome)
			assert.Equal(t, workflow.Detail{Region: "us-west-2", Operation: "scale_out"}, resolver.calls[0].detail)
		})
	}
}

func TestRoute_DownstreamError(t *testing.T) {
	boom := errors.New("store unavailable")
	r := New(&fakeResolver{err: boom}, Config{}, nil)

	_, err := r.Route(context.Background(), event("acme.spotworker", events.DetailTypeFulfilled, "tok"))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestRoute_CustomSuffix(t *testing.T) {
	r := New(&fakeResolver{result: workflow.Resolved}, Config{SourceSuffix: ".gpuworker"}, nil)

	result, err := r.Route(context.Background(), event("acme.gpuworker", events.DetailTypeFulfilled, "tok"))
	require.NoError(t, err)
	assert.Equal(t, Resolved, result)

	result, err = r.Route(context.Background(), event("acme.spotworker", events.DetailTypeFulfilled, "tok"))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, Malformed, result)
}
