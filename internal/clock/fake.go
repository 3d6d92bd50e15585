package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers created from it fire when
// Advance moves the current time past their deadline.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeTimer
}

// NewFake creates a Fake set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Fake) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{
		clock:    c,
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.ch <- c.current
		t.fired = true
		return t
	}
	c.waiters = append(c.waiters, t)
	return t
}

// Advance moves the clock forward by d and fires every timer whose
// deadline has been reached.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due []*fakeTimer
	rest := c.waiters[:0]
	for _, t := range c.waiters {
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.waiters = rest
	c.mu.Unlock()

	for _, t := range due {
		t.fire(now)
	}
}

// WaiterCount returns the number of timers currently waiting.
func (c *Fake) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntil busy-waits until at least n timers are waiting on the clock.
// Callers rely on an outer test timeout to bound it.
func (c *Fake) BlockUntil(n int) {
	for {
		if c.WaiterCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	fired    bool
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (t *fakeTimer) fire(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}
