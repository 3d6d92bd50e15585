// Package schedule owns ScheduledTrigger records: creation, cancellation,
// next-fire computation, and restore after restart. The trigger ordering
// and wait loop live in the scheduler package; the store arms and disarms
// triggers through the TriggerRegistry interface.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/termrelay/internal/clock"
	"github.com/djlord-it/termrelay/internal/domain"
)

// Persistence stores flat trigger records so schedules survive a restart.
type Persistence interface {
	SaveTrigger(ctx context.Context, t domain.ScheduledTrigger) error
	DeleteTrigger(ctx context.Context, id uuid.UUID) error
	ListTriggers(ctx context.Context) ([]domain.ScheduledTrigger, error)
}

// TriggerRegistry is the scheduler side of the store: triggers are armed
// when created or restored and disarmed when cancelled or deactivated.
type TriggerRegistry interface {
	Arm(t domain.ScheduledTrigger)
	Disarm(id uuid.UUID)
}

// CronParser parses cron expressions for cron-based recurring triggers.
type CronParser interface {
	Parse(expression string, timezone string) (CronSchedule, error)
}

type CronSchedule interface {
	Next(after time.Time) time.Time
}

// CreateRequest describes a new trigger. Either DelayAmount/DelayUnit or
// CronExpression must be set, not both.
type CreateRequest struct {
	TargetSession  string
	Message        string
	DelayAmount    int
	DelayUnit      domain.IntervalUnit
	IsRecurring    bool
	CronExpression string
	Timezone       string
}

// ListFilter narrows List results. Zero value lists all active triggers.
type ListFilter struct {
	TargetSession   string
	IncludeArchived bool
}

type record struct {
	trigger domain.ScheduledTrigger
	cron    CronSchedule // non-nil for cron triggers
}

type Store struct {
	mu       sync.Mutex
	triggers map[uuid.UUID]*record

	persist  Persistence
	registry TriggerRegistry
	parser   CronParser
	clock    clock.Clock
}

// New creates a Store backed by the given persistence.
func New(persist Persistence, parser CronParser) *Store {
	return &Store{
		triggers: make(map[uuid.UUID]*record),
		persist:  persist,
		parser:   parser,
		clock:    clock.System(),
	}
}

// WithRegistry attaches the scheduler. Must be set before Create/Restore.
func (s *Store) WithRegistry(r TriggerRegistry) *Store {
	s.registry = r
	return s
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(c clock.Clock) *Store {
	s.clock = c
	return s
}

// Create validates the request, normalizes the delay to an absolute
// next-fire time, persists the trigger, and arms it.
// Returns domain.ErrInvalidSchedule (wrapped) on bad input.
func (s *Store) Create(ctx context.Context, req CreateRequest) (domain.ScheduledTrigger, error) {
	if req.TargetSession == "" {
		return domain.ScheduledTrigger{}, fmt.Errorf("%w: target session required", domain.ErrInvalidSchedule)
	}
	if req.Message == "" {
		return domain.ScheduledTrigger{}, fmt.Errorf("%w: message required", domain.ErrInvalidSchedule)
	}

	now := s.clock.Now().UTC()

	t := domain.ScheduledTrigger{
		ID:            uuid.New(),
		TargetSession: req.TargetSession,
		Message:       req.Message,
		Active:        true,
		CreatedAt:     now,
	}

	var cronSched CronSchedule

	switch {
	case req.CronExpression != "":
		if req.DelayAmount != 0 {
			return domain.ScheduledTrigger{}, fmt.Errorf("%w: cron expression and delay are mutually exclusive", domain.ErrInvalidSchedule)
		}
		if s.parser == nil {
			return domain.ScheduledTrigger{}, fmt.Errorf("%w: cron triggers not supported", domain.ErrInvalidSchedule)
		}
		sched, err := s.parser.Parse(req.CronExpression, req.Timezone)
		if err != nil {
			return domain.ScheduledTrigger{}, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
		}
		cronSched = sched
		t.IsRecurring = true
		t.CronExpression = req.CronExpression
		t.Timezone = req.Timezone
		t.NextFireAt = sched.Next(now)

	default:
		if req.DelayAmount <= 0 {
			return domain.ScheduledTrigger{}, fmt.Errorf("%w: delay must be positive", domain.ErrInvalidSchedule)
		}
		if !req.DelayUnit.Valid() {
			return domain.ScheduledTrigger{}, fmt.Errorf("%w: unknown unit %q", domain.ErrInvalidSchedule, req.DelayUnit)
		}
		t.IsRecurring = req.IsRecurring
		t.IntervalAmount = req.DelayAmount
		t.IntervalUnit = req.DelayUnit
		t.NextFireAt = now.Add(req.DelayUnit.Duration(req.DelayAmount))
	}

	if err := s.persist.SaveTrigger(ctx, t); err != nil {
		return domain.ScheduledTrigger{}, fmt.Errorf("persist trigger: %w", err)
	}

	s.mu.Lock()
	s.triggers[t.ID] = &record{trigger: t, cron: cronSched}
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.Arm(t)
	}

	log.Printf("schedule: created trigger=%s target=%s recurring=%v next=%s",
		t.ID, t.TargetSession, t.IsRecurring, t.NextFireAt.Format(time.RFC3339))
	return t, nil
}

// Cancel archives a trigger and removes it from the scheduler ordering.
// Idempotent: cancelling an unknown or already-archived id returns false.
// The record is retained for inspection until the sweeper prunes it.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) bool {
	s.mu.Lock()
	rec, ok := s.triggers[id]
	if !ok || rec.trigger.Archived {
		s.mu.Unlock()
		return false
	}
	rec.trigger.Archived = true
	rec.trigger.Active = false
	t := rec.trigger
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.Disarm(id)
	}
	if err := s.persist.SaveTrigger(ctx, t); err != nil {
		log.Printf("schedule: failed to persist cancel trigger=%s: %v", id, err)
	}

	log.Printf("schedule: cancelled trigger=%s", id)
	return true
}

// Toggle flips a trigger's active flag. Returns the new state and whether
// the trigger was found. Reactivating a trigger whose fire time has passed
// recomputes it from now so it never fires a backlog.
func (s *Store) Toggle(ctx context.Context, id uuid.UUID) (active bool, ok bool) {
	s.mu.Lock()
	rec, found := s.triggers[id]
	if !found || rec.trigger.Archived {
		s.mu.Unlock()
		return false, false
	}

	now := s.clock.Now().UTC()
	rec.trigger.Active = !rec.trigger.Active
	if rec.trigger.Active && !rec.trigger.NextFireAt.After(now) {
		rec.trigger.NextFireAt = s.nextAfter(rec, now)
	}
	t := rec.trigger
	s.mu.Unlock()

	if s.registry != nil {
		if t.Active {
			s.registry.Arm(t)
		} else {
			s.registry.Disarm(id)
		}
	}
	if err := s.persist.SaveTrigger(ctx, t); err != nil {
		log.Printf("schedule: failed to persist toggle trigger=%s: %v", id, err)
	}
	return t.Active, true
}

// Get returns a copy of the trigger, if known.
func (s *Store) Get(id uuid.UUID) (domain.ScheduledTrigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[id]
	if !ok {
		return domain.ScheduledTrigger{}, false
	}
	return rec.trigger, true
}

// List returns copies of matching triggers in creation order.
func (s *Store) List(filter ListFilter) []domain.ScheduledTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ScheduledTrigger
	for _, rec := range s.triggers {
		t := rec.trigger
		if t.Archived && !filter.IncludeArchived {
			continue
		}
		if filter.TargetSession != "" && filter.TargetSession != t.TargetSession {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Restore loads persisted triggers and re-arms every active one so
// in-flight schedules survive a restart. Fire times already in the past
// are advanced to the next boundary at or after now.
func (s *Store) Restore(ctx context.Context) ([]domain.ScheduledTrigger, error) {
	persisted, err := s.persist.ListTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}

	now := s.clock.Now().UTC()
	var restored []domain.ScheduledTrigger

	for _, t := range persisted {
		rec := &record{trigger: t}
		if t.CronExpression != "" && s.parser != nil {
			sched, err := s.parser.Parse(t.CronExpression, t.Timezone)
			if err != nil {
				log.Printf("schedule: restore trigger=%s: bad cron expression: %v", t.ID, err)
				continue
			}
			rec.cron = sched
		}

		s.mu.Lock()
		s.triggers[t.ID] = rec
		s.mu.Unlock()

		if t.Archived || !t.Active {
			continue
		}

		if !t.NextFireAt.After(now) {
			if t.IsRecurring {
				rec.trigger.NextFireAt = s.nextAfter(rec, now)
			} else {
				// One-time trigger missed while down: fire as soon as possible.
				rec.trigger.NextFireAt = now
			}
		}

		if s.registry != nil {
			s.registry.Arm(rec.trigger)
		}
		restored = append(restored, rec.trigger)
	}

	log.Printf("schedule: restored %d active triggers (%d persisted)", len(restored), len(persisted))
	return restored, nil
}

// MarkFired records a fire and computes the trigger's next state:
// recurring triggers get a fresh NextFireAt and are re-armed by the
// caller; one-time triggers are archived. Cadence is decoupled from the
// delivery outcome.
func (s *Store) MarkFired(ctx context.Context, id uuid.UUID, firedAt time.Time) (next time.Time, rearm bool, err error) {
	s.mu.Lock()
	rec, ok := s.triggers[id]
	if !ok || rec.trigger.Archived || !rec.trigger.Active {
		s.mu.Unlock()
		return time.Time{}, false, nil
	}

	rec.trigger.FiredCount++
	if rec.trigger.IsRecurring {
		rec.trigger.NextFireAt = s.nextAfter(rec, firedAt)
		next = rec.trigger.NextFireAt
		rearm = true
	} else {
		rec.trigger.Archived = true
		rec.trigger.Active = false
	}
	t := rec.trigger
	s.mu.Unlock()

	if perr := s.persist.SaveTrigger(ctx, t); perr != nil {
		log.Printf("schedule: failed to persist fire trigger=%s: %v", id, perr)
	}
	return next, rearm, nil
}

// PruneArchived hard-deletes archived triggers older than the threshold.
// Returns the number removed.
func (s *Store) PruneArchived(ctx context.Context, olderThan time.Time) int {
	s.mu.Lock()
	var prune []uuid.UUID
	for id, rec := range s.triggers {
		if rec.trigger.Archived && rec.trigger.CreatedAt.Before(olderThan) {
			prune = append(prune, id)
		}
	}
	for _, id := range prune {
		delete(s.triggers, id)
	}
	s.mu.Unlock()

	for _, id := range prune {
		if err := s.persist.DeleteTrigger(ctx, id); err != nil {
			log.Printf("schedule: failed to delete pruned trigger=%s: %v", id, err)
		}
	}
	return len(prune)
}

// CreateReminder schedules a one-time trigger on behalf of the event bus.
func (s *Store) CreateReminder(ctx context.Context, targetSession, message string, delay time.Duration) error {
	seconds := int(delay / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	_, err := s.Create(ctx, CreateRequest{
		TargetSession: targetSession,
		Message:       message,
		DelayAmount:   seconds,
		DelayUnit:     domain.UnitSeconds,
	})
	return err
}

// nextAfter computes the first fire boundary strictly after now.
// Interval triggers advance from the previous boundary so a process that
// slept through several intervals resumes on cadence instead of firing a
// backlog. Caller holds s.mu.
func (s *Store) nextAfter(rec *record, now time.Time) time.Time {
	if rec.cron != nil {
		return rec.cron.Next(now)
	}
	interval := rec.trigger.Interval()
	next := rec.trigger.NextFireAt.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}
