// Package breaker implements a per-target circuit breaker. Delivery to a
// session that keeps failing is cut off for a cooldown period, then probed
// with a single half-open attempt.
package breaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// target tracks one session's failure streak. The circuit is open while
// failures >= threshold; probing marks the single half-open attempt that
// is allowed after the cooldown elapses.
type target struct {
	failures int
	openedAt time.Time
	probing  bool
}

type CircuitBreaker struct {
	mu        sync.Mutex
	targets   map[string]*target
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		targets:   make(map[string]*target),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithNow replaces the time source. Intended for tests.
func (cb *CircuitBreaker) WithNow(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Allow reports whether a delivery to targetSession may proceed. Once the
// cooldown has elapsed a single probe passes; further calls are denied
// until that probe's outcome is recorded.
func (cb *CircuitBreaker) Allow(targetSession string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.targets[targetSession]
	if !ok || s.failures < cb.threshold {
		return nil
	}
	if s.probing {
		return ErrCircuitOpen
	}
	if cb.now().Sub(s.openedAt) < cb.cooldown {
		return ErrCircuitOpen
	}
	s.probing = true
	return nil
}

// RecordSuccess closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess(targetSession string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.targets, targetSession)
}

// RecordFailure extends the failure streak. Crossing the threshold, or a
// failed probe, opens the circuit with a fresh cooldown.
func (cb *CircuitBreaker) RecordFailure(targetSession string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.targets[targetSession]
	if !ok {
		s = &target{}
		cb.targets[targetSession] = s
	}

	s.failures++
	s.probing = false
	if s.failures >= cb.threshold {
		s.openedAt = cb.now()
	}
}
