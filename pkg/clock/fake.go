package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced clock for tests.
//
// Time only moves when Advance or Set is called. Pending After channels and
// tickers whose deadline has been reached fire during the advance, in
// deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	nextID  uint64
	waiters []*waiter
}

type waiter struct {
	id       uint64
	deadline time.Time
	ch       chan time.Time
	ticker   *fakeTicker
}

// NewFakeClock creates a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake duration since t.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives once the clock has advanced by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.addWaiter(&waiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker that fires every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{clock: c, interval: d, ch: make(chan time.Time, 1)}
	t.id = c.addWaiter(&waiter{deadline: c.now.Add(d), ticker: t})
	return t
}

// Advance moves the clock forward by d, firing anything that comes due.
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.now) {
		return
	}
	for len(c.waiters) > 0 && !c.waiters[0].deadline.After(t) {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		c.now = w.deadline

		if w.ch != nil {
			w.ch <- w.deadline
			continue
		}
		select {
		case w.ticker.ch <- w.deadline:
		default:
		}
		if !w.ticker.stopped {
			w.ticker.id = c.addWaiter(&waiter{deadline: w.deadline.Add(w.ticker.interval), ticker: w.ticker})
		}
	}
	c.now = t
}

// PendingWaiters returns the number of timers and tickers still scheduled.
func (c *FakeClock) PendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// addWaiter keeps waiters sorted by deadline, FIFO on ties. Caller holds c.mu.
func (c *FakeClock) addWaiter(w *waiter) uint64 {
	c.nextID++
	w.id = c.nextID
	i := sort.Search(len(c.waiters), func(i int) bool {
		return c.waiters[i].deadline.After(w.deadline)
	})
	c.waiters = append(c.waiters, nil)
	copy(c.waiters[i+1:], c.waiters[i:])
	c.waiters[i] = w
	return w.id
}

func (c *FakeClock) removeWaiter(id uint64) {
	for i, w := range c.waiters {
		if w.id == id {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	ch       chan time.Time
	id       uint64
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.clock.removeWaiter(t.id)
}
