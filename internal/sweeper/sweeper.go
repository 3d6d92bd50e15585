// Package sweeper runs periodic housekeeping: expired event subscriptions
// are garbage-collected and archived triggers past their retention window
// are hard-deleted. Both operations are idempotent, so a crash mid-cycle
// costs nothing; the next cycle picks up where this one stopped.
package sweeper

import (
	"context"
	"log"
	"time"
)

// SubscriptionSweeper garbage-collects expired subscriptions.
type SubscriptionSweeper interface {
	SweepExpired(ctx context.Context) int
}

// TriggerPruner hard-deletes archived triggers older than a threshold.
type TriggerPruner interface {
	PruneArchived(ctx context.Context, olderThan time.Time) int
}

// MetricsSink records sweep outcomes.
type MetricsSink interface {
	SweepCompleted(subscriptionsRemoved, triggersPruned int)
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often the sweeper runs.
	// Default: 5 minutes.
	Interval time.Duration

	// TriggerRetention is how long archived triggers are kept before
	// hard deletion. Default: 24 hours.
	TriggerRetention time.Duration
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Minute,
		TriggerRetention: 24 * time.Hour,
	}
}

// Sweeper runs the housekeeping loop.
type Sweeper struct {
	config  Config
	subs    SubscriptionSweeper
	pruner  TriggerPruner
	metrics MetricsSink
	clock   func() time.Time
}

// New creates a Sweeper. Either collaborator may be nil; the sweep then
// skips that half of the work.
func New(config Config, subs SubscriptionSweeper, pruner TriggerPruner) *Sweeper {
	return &Sweeper{
		config: config,
		subs:   subs,
		pruner: pruner,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (s *Sweeper) WithMetrics(sink MetricsSink) *Sweeper {
	s.metrics = sink
	return s
}

// WithNow replaces the time source. Intended for tests.
func (s *Sweeper) WithNow(now func() time.Time) *Sweeper {
	s.clock = now
	return s
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Printf("sweeper: started (interval=%s, trigger_retention=%s)",
		s.config.Interval, s.config.TriggerRetention)

	// Run immediately on startup, then on ticker
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one housekeeping cycle.
func (s *Sweeper) RunCycle(ctx context.Context) {
	removed := 0
	if s.subs != nil {
		removed = s.subs.SweepExpired(ctx)
	}

	pruned := 0
	if s.pruner != nil {
		cutoff := s.clock().UTC().Add(-s.config.TriggerRetention)
		pruned = s.pruner.PruneArchived(ctx, cutoff)
	}

	if s.metrics != nil {
		s.metrics.SweepCompleted(removed, pruned)
	}
	if removed > 0 || pruned > 0 {
		log.Printf("sweeper: cycle complete, subscriptions_removed=%d triggers_pruned=%d", removed, pruned)
	}
}
