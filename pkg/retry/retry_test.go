package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_SuccessOnRetry(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("throttled")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	want := errors.New("event bus unavailable")
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return want
	})

	assert.ErrorIs(t, err, want)
	assert.Equal(t, 3, attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	want := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return Permanent(want)
	})

	assert.Equal(t, want, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 0, InitialDelay: time.Hour}

	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, cfg, func(ctx context.Context) error {
			return errors.New("retry me")
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoWithValue(t *testing.T) {
	attempts := 0
	got, err := DoWithValue(context.Background(), fastConfig(3), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("first try fails")
		}
		return "us-east-1", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "us-east-1", got)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Greater(t, cfg.MaxDelay, cfg.InitialDelay)
}
