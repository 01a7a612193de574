package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NavarchProject/spotorch/pkg/paramstore"
	"github.com/NavarchProject/spotorch/pkg/retry"
)

func TestScheduleTrigger_StartsRunWhenIdle(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	trigger := NewScheduleTrigger(h.engine, h.store, ScheduleConfig{Interval: 10 * time.Minute, Clock: h.clock}, nil)
	require.NoError(t, h.store.Put(ctx, DefaultStateKey, "true", true))

	require.NoError(t, trigger.Activate(ctx))
	t.Cleanup(func() { _ = trigger.Deactivate(ctx) })
	assert.True(t, trigger.Active())

	require.Eventually(t, func() bool { return h.clock.PendingWaiters() == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(10 * time.Minute)

	require.Eventually(t, func() bool {
		active, err := h.engine.Active(ctx)
		return err == nil && len(active) == 1
	}, time.Second, time.Millisecond)

	// A run is already active, so further ticks start nothing.
	h.clock.Advance(10 * time.Minute)
	h.clock.Advance(10 * time.Minute)
	require.NoError(t, trigger.Deactivate(ctx))

	runs, err := h.engine.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestScheduleTrigger_ActivateDeactivateIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	trigger := NewScheduleTrigger(h.engine, h.store, ScheduleConfig{Clock: h.clock}, nil)

	require.NoError(t, trigger.Deactivate(ctx))
	require.NoError(t, trigger.Activate(ctx))
	require.NoError(t, trigger.Activate(ctx))
	assert.True(t, trigger.Active())

	require.Eventually(t, func() bool { return h.clock.PendingWaiters() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, trigger.Deactivate(ctx))
	require.NoError(t, trigger.Deactivate(ctx))
	assert.False(t, trigger.Active())
}

func TestScheduleTrigger_DrivenByController(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	trigger := NewScheduleTrigger(h.engine, h.store, ScheduleConfig{Clock: h.clock}, nil)
	h.controller.trigger = trigger

	require.NoError(t, h.controller.SetEnabled(ctx, true, false))
	assert.True(t, trigger.Active())

	require.NoError(t, h.controller.SetEnabled(ctx, false, false))
	assert.False(t, trigger.Active())
}

// readCountingStore counts reads so tests can wait for a tick to consult
// the switch. A non-nil err fails every read.
type readCountingStore struct {
	paramstore.Store
	err   error
	reads atomic.Int32
}

func (s *readCountingStore) Get(ctx context.Context, key string) (string, error) {
	defer s.reads.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.Store.Get(ctx, key)
}

func TestScheduleTrigger_SkipsWhenSwitchOff(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	store := &readCountingStore{Store: h.store}
	trigger := NewScheduleTrigger(h.engine, store, ScheduleConfig{Interval: 10 * time.Minute, Clock: h.clock}, nil)
	require.NoError(t, h.store.Put(ctx, DefaultStateKey, "false", true))

	require.NoError(t, trigger.Activate(ctx))
	require.Eventually(t, func() bool { return h.clock.PendingWaiters() == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return store.reads.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, trigger.Deactivate(ctx))

	runs, err := h.engine.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestScheduleTrigger_SkipsWhenSwitchUnreadable(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, DefaultStateKey, "true", true))
	store := &readCountingStore{Store: h.store, err: errors.New("throttled")}
	trigger := NewScheduleTrigger(h.engine, store, ScheduleConfig{Interval: 10 * time.Minute, Clock: h.clock}, nil)

	require.NoError(t, trigger.Activate(ctx))
	require.Eventually(t, func() bool { return h.clock.PendingWaiters() == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return store.reads.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, trigger.Deactivate(ctx))

	runs, err := h.engine.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// Two instances share one store. The instance that restored its trigger
// must stop starting runs once the other instance disables provisioning.
func TestScheduleTrigger_HonorsDisableFromAnotherInstance(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first := New(h.store, &recordingTrigger{}, h.engine, h.channel, Config{
		Clock:         h.clock,
		TeardownRetry: retry.Config{MaxAttempts: 1},
	}, nil)
	store := &readCountingStore{Store: h.store}
	trigger := NewScheduleTrigger(h.engine, store, ScheduleConfig{Interval: 10 * time.Minute, Clock: h.clock}, nil)
	second := New(h.store, trigger, h.engine, h.channel, Config{
		Clock:         h.clock,
		TeardownRetry: retry.Config{MaxAttempts: 1},
	}, nil)
	t.Cleanup(func() { _ = trigger.Deactivate(ctx) })

	require.NoError(t, first.SetEnabled(ctx, true, false))
	require.NoError(t, second.Restore(ctx))
	require.True(t, trigger.Active())

	require.NoError(t, first.SetEnabled(ctx, false, false))
	enabled, err := second.Enabled(ctx)
	require.NoError(t, err)
	require.False(t, enabled)

	require.Eventually(t, func() bool { return h.clock.PendingWaiters() == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return store.reads.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, trigger.Deactivate(ctx))

	active, err := h.engine.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "no run may start while the switch is off")
}
