// Package scheduler runs the timer-driven fire loop. Triggers are kept in
// a min-heap ordered by next fire time, so the loop sleeps until exactly
// the earliest deadline instead of polling; arming or disarming a trigger
// interrupts the current wait.
package scheduler

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/termrelay/internal/clock"
	"github.com/djlord-it/termrelay/internal/domain"
)

// DeliveryQueue receives the message constructed for a fired trigger.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, targetSession, payload string, maxAttempts int) (domain.DeliveryItem, error)
}

// FireMarker records a fire on the owning store and reports whether and
// when the trigger should be re-armed.
type FireMarker interface {
	MarkFired(ctx context.Context, id uuid.UUID, firedAt time.Time) (next time.Time, rearm bool, err error)
}

// MetricsSink records scheduler metrics. All methods are fire-and-forget.
type MetricsSink interface {
	TriggerFired(recurring bool)
	FireLatency(d time.Duration)
	TriggersArmed(count int)
}

type entry struct {
	id            uuid.UUID
	targetSession string
	message       string
	recurring     bool
	fireAt        time.Time
	createdAt     time.Time
	index         int
}

// triggerHeap orders by (fireAt, createdAt, id) so equal fire times
// resolve deterministically in creation order.
type triggerHeap []*entry

func (h triggerHeap) Len() int { return len(h) }

func (h triggerHeap) Less(i, j int) bool {
	if !h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].fireAt.Before(h[j].fireAt)
	}
	if !h[i].createdAt.Equal(h[j].createdAt) {
		return h[i].createdAt.Before(h[j].createdAt)
	}
	return h[i].id.String() < h[j].id.String()
}

func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *triggerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type Scheduler struct {
	mu      sync.Mutex
	heap    triggerHeap
	byID    map[uuid.UUID]*entry
	wake    chan struct{}
	queue   DeliveryQueue
	marker  FireMarker
	clock   clock.Clock
	metrics MetricsSink
}

func New(queue DeliveryQueue, marker FireMarker) *Scheduler {
	return &Scheduler{
		byID:   make(map[uuid.UUID]*entry),
		wake:   make(chan struct{}, 1),
		queue:  queue,
		marker: marker,
		clock:  clock.System(),
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Scheduler) WithClock(c clock.Clock) *Scheduler {
	s.clock = c
	return s
}

// WithMetrics attaches a metrics sink.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// Arm inserts or replaces a trigger in the fire ordering and interrupts
// the current wait if the new deadline is earlier.
func (s *Scheduler) Arm(t domain.ScheduledTrigger) {
	s.mu.Lock()
	if old, ok := s.byID[t.ID]; ok {
		heap.Remove(&s.heap, old.index)
	}
	e := &entry{
		id:            t.ID,
		targetSession: t.TargetSession,
		message:       t.Message,
		recurring:     t.IsRecurring,
		fireAt:        t.NextFireAt,
		createdAt:     t.CreatedAt,
	}
	heap.Push(&s.heap, e)
	s.byID[t.ID] = e
	armed := len(s.heap)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TriggersArmed(armed)
	}
	s.kick()
}

// Disarm removes a trigger from the ordering. Removing one mid-fire is a
// no-op for the in-flight fire; the store refuses the reschedule instead.
func (s *Scheduler) Disarm(id uuid.UUID) {
	s.mu.Lock()
	e, ok := s.byID[id]
	if ok {
		heap.Remove(&s.heap, e.index)
		delete(s.byID, id)
	}
	armed := len(s.heap)
	s.mu.Unlock()

	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.TriggersArmed(armed)
	}
	s.kick()
}

// Armed returns the number of triggers currently in the ordering.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Run drives the fire loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Println("scheduler: started")

	for {
		s.fireDue(ctx)

		wait, ok := s.nextWait()
		var timer clock.Timer
		var timerC <-chan time.Time
		if ok {
			timer = s.clock.NewTimer(wait)
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Println("scheduler: stopped")
			return
		case <-s.wake:
		case <-timerC:
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// kick interrupts the current wait without blocking.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// nextWait returns the duration until the earliest deadline, or false
// when nothing is armed.
func (s *Scheduler) nextWait() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return 0, false
	}
	return s.heap[0].fireAt.Sub(s.clock.Now()), true
}

// fireDue pops and fires every trigger whose deadline has passed, in
// deadline order. The delivery is enqueued first; the reschedule/archive
// decision is the store's and happens regardless of delivery outcome.
func (s *Scheduler) fireDue(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.heap) == 0 {
			s.mu.Unlock()
			return
		}
		now := s.clock.Now()
		if s.heap[0].fireAt.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.heap).(*entry)
		delete(s.byID, e.id)
		s.mu.Unlock()

		s.fire(ctx, e, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry, firedAt time.Time) {
	if _, err := s.queue.Enqueue(ctx, e.targetSession, e.message, 0); err != nil {
		log.Printf("scheduler: enqueue trigger=%s target=%s: %v", e.id, e.targetSession, err)
	}

	if s.metrics != nil {
		s.metrics.TriggerFired(e.recurring)
		s.metrics.FireLatency(firedAt.Sub(e.fireAt))
	}

	next, rearm, err := s.marker.MarkFired(ctx, e.id, firedAt)
	if err != nil {
		log.Printf("scheduler: mark fired trigger=%s: %v", e.id, err)
		return
	}
	if !rearm {
		log.Printf("scheduler: fired trigger=%s target=%s (archived)", e.id, e.targetSession)
		return
	}

	s.mu.Lock()
	e.fireAt = next
	heap.Push(&s.heap, e)
	s.byID[e.id] = e
	s.mu.Unlock()

	log.Printf("scheduler: fired trigger=%s target=%s next=%s", e.id, e.targetSession, next.Format(time.RFC3339))
}
