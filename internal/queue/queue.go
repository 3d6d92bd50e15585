// Package queue serializes message deliveries into terminal targets. One
// worker pulls one pending item at a time, so at most one delivery is ever
// in flight and ordering stays deterministic. Failed attempts go to the
// back of the queue with a backoff floor so one broken target cannot
// starve the rest.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/djlord-it/termrelay/internal/clock"
	"github.com/djlord-it/termrelay/internal/domain"
)

var defaultBackoff = []time.Duration{
	0,
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

const (
	defaultMaxAttempts  = 3
	defaultHistoryLimit = 500
	payloadSummaryLen   = 80
)

// Adapter sends text into a target session. An error wrapping
// domain.ErrTargetNotFound is terminal; anything else is transient.
type Adapter interface {
	Deliver(ctx context.Context, targetSession, text string) error
}

// Breaker guards targets that fail repeatedly. Optional.
type Breaker interface {
	Allow(targetSession string) error
	RecordSuccess(targetSession string)
	RecordFailure(targetSession string)
}

// AnalyticsSink records terminal delivery outcomes. Best-effort; the sink
// handles its own errors.
type AnalyticsSink interface {
	Record(ctx context.Context, entry domain.DeliveryLogEntry)
}

// MetricsSink records queue metrics. All methods are fire-and-forget.
type MetricsSink interface {
	DeliveryAttemptCompleted(attempt int, outcomeClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryScheduled(backoff time.Duration)
	PendingSizeUpdate(size int)
	InFlightIncr()
	InFlightDecr()
}

// Outcome classes for DeliveryAttemptCompleted.
const (
	OutcomeClassDelivered = "delivered"
	OutcomeClassTransient = "transient_error"
	OutcomeClassNotFound  = "not_found"
)

// Config holds retry and history settings.
type Config struct {
	// MaxAttempts applies when Enqueue is called with maxAttempts<=0.
	MaxAttempts int
	// Backoff floors indexed by attempts so far; the last entry repeats.
	Backoff []time.Duration
	// HistoryLimit bounds the delivery log ring.
	HistoryLimit int
}

// Status is a point-in-time snapshot of the queue.
type Status struct {
	PendingCount   int
	IsProcessing   bool
	CurrentItem    *domain.DeliveryItem
	TotalProcessed int64
	TotalFailed    int64
}

type Queue struct {
	mu      sync.Mutex
	pending []*domain.DeliveryItem
	current *domain.DeliveryItem

	history        []domain.DeliveryLogEntry
	historyLimit   int
	totalProcessed int64
	totalFailed    int64

	notify chan struct{}

	adapter     Adapter
	clock       clock.Clock
	backoff     []time.Duration
	maxAttempts int

	breaker   Breaker
	analytics AnalyticsSink
	metrics   MetricsSink
}

func New(config Config, adapter Adapter) *Queue {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if len(config.Backoff) == 0 {
		config.Backoff = defaultBackoff
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaultHistoryLimit
	}
	return &Queue{
		historyLimit: config.HistoryLimit,
		notify:       make(chan struct{}, 1),
		adapter:      adapter,
		clock:        clock.System(),
		backoff:      config.Backoff,
		maxAttempts:  config.MaxAttempts,
	}
}

// WithClock replaces the time source. Intended for tests.
func (q *Queue) WithClock(c clock.Clock) *Queue {
	q.clock = c
	return q
}

// WithBreaker attaches a per-target circuit breaker.
func (q *Queue) WithBreaker(b Breaker) *Queue {
	q.breaker = b
	return q
}

// WithAnalytics attaches an analytics sink.
func (q *Queue) WithAnalytics(sink AnalyticsSink) *Queue {
	q.analytics = sink
	return q
}

// WithMetrics attaches a metrics sink.
func (q *Queue) WithMetrics(sink MetricsSink) *Queue {
	q.metrics = sink
	return q
}

// Enqueue appends a pending delivery. maxAttempts<=0 uses the configured
// default. The call succeeds once the item is queued; delivery failures
// surface later through Status and History.
func (q *Queue) Enqueue(ctx context.Context, targetSession, payload string, maxAttempts int) (domain.DeliveryItem, error) {
	if targetSession == "" {
		return domain.DeliveryItem{}, fmt.Errorf("target session required")
	}
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	now := q.clock.Now().UTC()
	item := &domain.DeliveryItem{
		ID:            uuid.New(),
		TargetSession: targetSession,
		Payload:       payload,
		MaxAttempts:   maxAttempts,
		Status:        domain.DeliveryStatusPending,
		EnqueuedAt:    now,
		ReadyAt:       now,
	}

	q.mu.Lock()
	q.pending = append(q.pending, item)
	size := len(q.pending)
	// Snapshot before unlocking; the worker mutates the shared item
	// under the same lock as soon as it picks it up.
	out := *item
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.PendingSizeUpdate(size)
	}
	q.kick()
	return out, nil
}

// Cancel removes a pending item. Only effective while pending: an
// in-flight item runs to completion because there is no safe point to
// abort mid-send.
func (q *Queue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.pending {
		if item.ID == id {
			item.Status = domain.DeliveryStatusCancelled
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

// ClearPending cancels every pending item and returns how many were
// removed. The in-flight item, if any, is untouched.
func (q *Queue) ClearPending() int {
	q.mu.Lock()
	n := len(q.pending)
	for _, item := range q.pending {
		item.Status = domain.DeliveryStatusCancelled
	}
	q.pending = nil
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.PendingSizeUpdate(0)
	}
	if n > 0 {
		log.Printf("queue: cleared %d pending items", n)
	}
	return n
}

// Status returns a snapshot of the live counters.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		PendingCount:   len(q.pending),
		IsProcessing:   q.current != nil,
		TotalProcessed: q.totalProcessed,
		TotalFailed:    q.totalFailed,
	}
	if q.current != nil {
		cur := *q.current
		st.CurrentItem = &cur
	}
	return st
}

// Pending returns copies of the pending items in queue order.
func (q *Queue) Pending() []domain.DeliveryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.DeliveryItem, len(q.pending))
	for i, item := range q.pending {
		out[i] = *item
	}
	return out
}

// History returns up to limit terminal outcomes, newest first.
func (q *Queue) History(limit int) []domain.DeliveryLogEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.history) {
		limit = len(q.history)
	}
	out := make([]domain.DeliveryLogEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = q.history[len(q.history)-1-i]
	}
	return out
}

// Run drives the single-flight worker until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	log.Println("queue: worker started")

	for {
		if ctx.Err() != nil {
			log.Println("queue: worker stopped")
			return
		}

		item, wait, ok := q.nextReady()
		if !ok {
			// Nothing pending: wait for an enqueue.
			select {
			case <-ctx.Done():
				log.Println("queue: worker stopped")
				return
			case <-q.notify:
			}
			continue
		}

		if wait > 0 {
			// Earliest item is backoff-deferred: wait it out, but let a
			// fresh enqueue interrupt since it may be ready sooner.
			timer := q.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Println("queue: worker stopped")
				return
			case <-q.notify:
				timer.Stop()
			case <-timer.C():
			}
			continue
		}

		q.process(ctx, item)
	}
}

// kick wakes the worker without blocking.
func (q *Queue) kick() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// nextReady returns the first pending item whose ReadyAt has passed,
// preserving FIFO order among ready items. When all pending items are
// deferred it returns the wait until the earliest one.
func (q *Queue) nextReady() (*domain.DeliveryItem, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, 0, false
	}

	now := q.clock.Now()
	earliest := time.Duration(-1)
	for _, item := range q.pending {
		wait := item.ReadyAt.Sub(now)
		if wait <= 0 {
			return item, 0, true
		}
		if earliest < 0 || wait < earliest {
			earliest = wait
		}
	}
	return nil, earliest, true
}

// process runs exactly one delivery attempt for the item.
func (q *Queue) process(ctx context.Context, item *domain.DeliveryItem) {
	q.mu.Lock()
	found := false
	for i, p := range q.pending {
		if p == item {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		// Cancelled between nextReady and process.
		q.mu.Unlock()
		return
	}
	item.Status = domain.DeliveryStatusInFlight
	q.current = item
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.InFlightIncr()
		defer q.metrics.InFlightDecr()
	}

	attempt := item.Attempts + 1

	var err error
	if q.breaker != nil {
		err = q.breaker.Allow(item.TargetSession)
	}
	start := q.clock.Now()
	if err == nil {
		err = q.adapter.Deliver(ctx, item.TargetSession, item.Payload)
	}
	duration := q.clock.Now().Sub(start)

	if err == nil {
		q.finish(ctx, item, attempt, true, "")
		if q.breaker != nil {
			q.breaker.RecordSuccess(item.TargetSession)
		}
		if q.metrics != nil {
			q.metrics.DeliveryAttemptCompleted(attempt, OutcomeClassDelivered, duration)
		}
		log.Printf("queue: delivered target=%s attempt=%d", item.TargetSession, attempt)
		return
	}

	if q.breaker != nil {
		q.breaker.RecordFailure(item.TargetSession)
	}

	notFound := errors.Is(err, domain.ErrTargetNotFound)
	outcomeClass := OutcomeClassTransient
	if notFound {
		outcomeClass = OutcomeClassNotFound
	}
	if q.metrics != nil {
		q.metrics.DeliveryAttemptCompleted(attempt, outcomeClass, duration)
	}

	if notFound || attempt >= item.MaxAttempts {
		q.finish(ctx, item, attempt, false, err.Error())
		log.Printf("queue: failed target=%s attempts=%d err=%v", item.TargetSession, attempt, err)
		return
	}

	// Transient failure with attempts left: back of the queue with a
	// backoff floor.
	backoff := q.backoffFor(attempt)
	q.mu.Lock()
	item.Attempts = attempt
	item.Status = domain.DeliveryStatusPending
	item.ReadyAt = q.clock.Now().Add(backoff)
	q.pending = append(q.pending, item)
	q.current = nil
	size := len(q.pending)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.RetryScheduled(backoff)
		q.metrics.PendingSizeUpdate(size)
	}
	log.Printf("queue: retry target=%s attempt=%d backoff=%s err=%v", item.TargetSession, attempt, backoff, err)
}

// finish transitions the item to a terminal state and appends the log
// entry.
func (q *Queue) finish(ctx context.Context, item *domain.DeliveryItem, attempt int, success bool, errMsg string) {
	entry := domain.DeliveryLogEntry{
		DeliveryID:     item.ID,
		TargetSession:  item.TargetSession,
		PayloadSummary: summarize(item.Payload),
		SentAt:         q.clock.Now().UTC(),
		Attempts:       attempt,
		Success:        success,
		Error:          errMsg,
	}

	q.mu.Lock()
	item.Attempts = attempt
	if success {
		item.Status = domain.DeliveryStatusDelivered
		q.totalProcessed++
	} else {
		item.Status = domain.DeliveryStatusFailed
		q.totalFailed++
	}
	q.current = nil
	q.history = append(q.history, entry)
	if len(q.history) > q.historyLimit {
		q.history = q.history[len(q.history)-q.historyLimit:]
	}
	q.mu.Unlock()

	if q.metrics != nil {
		if success {
			q.metrics.DeliveryOutcome("success")
		} else {
			q.metrics.DeliveryOutcome("failed")
		}
	}
	if q.analytics != nil {
		q.analytics.Record(ctx, entry)
	}
}

// backoffFor returns the floor before the next attempt, clamping to the
// last configured entry.
func (q *Queue) backoffFor(attempts int) time.Duration {
	idx := attempts
	if idx >= len(q.backoff) {
		idx = len(q.backoff) - 1
	}
	return q.backoff[idx]
}

func summarize(payload string) string {
	if len(payload) <= payloadSummaryLen {
		return payload
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := payloadSummaryLen - 3
	for cut > 0 && !utf8.RuneStart(payload[cut]) {
		cut--
	}
	return payload[:cut] + "..."
}
