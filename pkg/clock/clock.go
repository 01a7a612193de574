// Package clock abstracts time so run timeouts, price windows and trigger
// loops can be driven deterministically in tests.
package clock

import "time"

// Clock provides time operations that can be real or simulated.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker that sends the current time after each tick.
	NewTicker(d time.Duration) Ticker
}

// Ticker wraps time.Ticker functionality.
type Ticker interface {
	// C returns the channel on which ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker. After Stop, no more ticks will be sent.
	Stop()
}
