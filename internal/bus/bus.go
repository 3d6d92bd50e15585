// Package bus owns EventSubscription records and dispatches published
// status-change events as deliveries. The bus never blocks: a match only
// ever enqueues work on the delivery queue (or schedules a reminder); it
// performs no I/O of its own.
package bus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/termrelay/internal/clock"
	"github.com/djlord-it/termrelay/internal/domain"
)

const defaultMaxPerSubscriber = 10

// DeliveryQueue receives rendered notifications.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, targetSession, payload string, maxAttempts int) (domain.DeliveryItem, error)
}

// ReminderScheduler creates one-time triggers for subscriptions that ask
// to be reminded after a delay instead of notified immediately.
type ReminderScheduler interface {
	CreateReminder(ctx context.Context, targetSession, message string, delay time.Duration) error
}

// Persistence stores flat subscription records across restarts.
type Persistence interface {
	SaveSubscription(ctx context.Context, sub domain.EventSubscription) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	ListSubscriptions(ctx context.Context) ([]domain.EventSubscription, error)
}

// MetricsSink records bus metrics. All methods are fire-and-forget.
type MetricsSink interface {
	PublishProcessed(matched int)
	SubscriptionsUpdate(count int)
	SubscribeRateLimited()
}

// SubscribeRequest describes a new subscription.
type SubscribeRequest struct {
	EventTypes        []string
	Filter            domain.EventFilter
	SubscriberSession string
	OneShot           bool
	TTL               time.Duration
	MessageTemplate   string
	RemindAfter       time.Duration
}

type Bus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*domain.EventSubscription

	queue     DeliveryQueue
	reminders ReminderScheduler
	persist   Persistence
	clock     clock.Clock
	metrics   MetricsSink

	maxPerSubscriber int
}

// New creates a Bus dispatching into the given queue. maxPerSubscriber<=0
// uses the default ceiling.
func New(queue DeliveryQueue, persist Persistence, maxPerSubscriber int) *Bus {
	if maxPerSubscriber <= 0 {
		maxPerSubscriber = defaultMaxPerSubscriber
	}
	return &Bus{
		subs:             make(map[uuid.UUID]*domain.EventSubscription),
		queue:            queue,
		persist:          persist,
		clock:            clock.System(),
		maxPerSubscriber: maxPerSubscriber,
	}
}

// WithClock replaces the time source. Intended for tests.
func (b *Bus) WithClock(c clock.Clock) *Bus {
	b.clock = c
	return b
}

// WithReminders enables reminder subscriptions.
func (b *Bus) WithReminders(r ReminderScheduler) *Bus {
	b.reminders = r
	return b
}

// WithMetrics attaches a metrics sink.
func (b *Bus) WithMetrics(sink MetricsSink) *Bus {
	b.metrics = sink
	return b
}

// Subscribe registers a subscription. Returns domain.ErrRateLimited once
// the subscriber already holds the maximum live subscriptions.
func (b *Bus) Subscribe(ctx context.Context, req SubscribeRequest) (domain.EventSubscription, error) {
	if len(req.EventTypes) == 0 {
		return domain.EventSubscription{}, fmt.Errorf("at least one event type required")
	}
	if req.SubscriberSession == "" {
		return domain.EventSubscription{}, fmt.Errorf("subscriber session required")
	}

	now := b.clock.Now().UTC()

	b.mu.Lock()
	live := 0
	for _, sub := range b.subs {
		if sub.SubscriberSession == req.SubscriberSession && !sub.Expired(now) {
			live++
		}
	}
	if live >= b.maxPerSubscriber {
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.SubscribeRateLimited()
		}
		return domain.EventSubscription{}, fmt.Errorf("%w: subscriber %q holds %d subscriptions",
			domain.ErrRateLimited, req.SubscriberSession, live)
	}

	sub := &domain.EventSubscription{
		ID:                uuid.New(),
		EventTypes:        append([]string(nil), req.EventTypes...),
		Filter:            req.Filter,
		SubscriberSession: req.SubscriberSession,
		OneShot:           req.OneShot,
		MessageTemplate:   req.MessageTemplate,
		RemindAfter:       req.RemindAfter,
		CreatedAt:         now,
	}
	if req.TTL > 0 {
		expires := now.Add(req.TTL)
		sub.ExpiresAt = &expires
	}
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()

	if b.persist != nil {
		if err := b.persist.SaveSubscription(ctx, *sub); err != nil {
			log.Printf("bus: failed to persist subscription=%s: %v", sub.ID, err)
		}
	}
	if b.metrics != nil {
		b.metrics.SubscriptionsUpdate(count)
	}

	log.Printf("bus: subscribed id=%s subscriber=%s types=%v oneshot=%v",
		sub.ID, sub.SubscriberSession, sub.EventTypes, sub.OneShot)
	return *sub, nil
}

// Unsubscribe removes a subscription. Idempotent.
func (b *Bus) Unsubscribe(ctx context.Context, id uuid.UUID) bool {
	b.mu.Lock()
	_, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return false
	}
	if b.persist != nil {
		if err := b.persist.DeleteSubscription(ctx, id); err != nil {
			log.Printf("bus: failed to delete subscription=%s: %v", id, err)
		}
	}
	if b.metrics != nil {
		b.metrics.SubscriptionsUpdate(count)
	}
	return true
}

// Get returns a copy of the subscription, if known.
func (b *Bus) Get(id uuid.UUID) (domain.EventSubscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return domain.EventSubscription{}, false
	}
	return *sub, true
}

// List returns copies of live subscriptions in creation order, optionally
// filtered by subscriber session. Expired subscriptions are excluded.
func (b *Bus) List(subscriberSession string) []domain.EventSubscription {
	now := b.clock.Now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.EventSubscription
	for _, sub := range b.subs {
		if sub.Expired(now) {
			continue
		}
		if subscriberSession != "" && sub.SubscriberSession != subscriberSession {
			continue
		}
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Publish dispatches the event to every live matching subscription and
// returns how many matched. One-shot subscriptions are consumed at match
// time: the match, not the delivery, is the trigger condition. Expired
// subscriptions encountered along the way are garbage-collected.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) int {
	now := b.clock.Now().UTC()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}

	b.mu.Lock()
	var matched []domain.EventSubscription
	var expired []uuid.UUID
	for id, sub := range b.subs {
		if sub.Expired(now) {
			expired = append(expired, id)
			continue
		}
		if !sub.WantsType(ev.Type) || !sub.Filter.Matches(ev) {
			continue
		}
		matched = append(matched, *sub)
		if sub.OneShot {
			delete(b.subs, id)
		}
	}
	for _, id := range expired {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	for _, sub := range matched {
		b.dispatch(ctx, sub, ev)
		if sub.OneShot && b.persist != nil {
			if err := b.persist.DeleteSubscription(ctx, sub.ID); err != nil {
				log.Printf("bus: failed to delete consumed subscription=%s: %v", sub.ID, err)
			}
		}
	}
	for _, id := range expired {
		if b.persist != nil {
			if err := b.persist.DeleteSubscription(ctx, id); err != nil {
				log.Printf("bus: failed to delete expired subscription=%s: %v", id, err)
			}
		}
	}

	if b.metrics != nil {
		b.metrics.PublishProcessed(len(matched))
		b.metrics.SubscriptionsUpdate(count)
	}
	if len(matched) > 0 {
		log.Printf("bus: published type=%s matched=%d", ev.Type, len(matched))
	}
	return len(matched)
}

// SweepExpired garbage-collects expired subscriptions outside the publish
// path. Returns how many were removed.
func (b *Bus) SweepExpired(ctx context.Context) int {
	now := b.clock.Now().UTC()

	b.mu.Lock()
	var expired []uuid.UUID
	for id, sub := range b.subs {
		if sub.Expired(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, id := range expired {
		if b.persist != nil {
			if err := b.persist.DeleteSubscription(ctx, id); err != nil {
				log.Printf("bus: failed to delete expired subscription=%s: %v", id, err)
			}
		}
	}
	return len(expired)
}

// Restore loads persisted subscriptions at process start.
func (b *Bus) Restore(ctx context.Context) (int, error) {
	if b.persist == nil {
		return 0, nil
	}
	subs, err := b.persist.ListSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	b.mu.Lock()
	for i := range subs {
		sub := subs[i]
		b.subs[sub.ID] = &sub
	}
	count := len(b.subs)
	b.mu.Unlock()

	log.Printf("bus: restored %d subscriptions", count)
	return count, nil
}

// dispatch renders the notification and hands it off. Failures are
// logged, never propagated: the underlying delivery has its own retries,
// and a one-shot subscription stays consumed either way.
func (b *Bus) dispatch(ctx context.Context, sub domain.EventSubscription, ev domain.Event) {
	msg := renderMessage(sub, ev)

	if sub.RemindAfter > 0 && b.reminders != nil {
		if err := b.reminders.CreateReminder(ctx, sub.SubscriberSession, msg, sub.RemindAfter); err != nil {
			log.Printf("bus: reminder for subscription=%s: %v", sub.ID, err)
		}
		return
	}

	if _, err := b.queue.Enqueue(ctx, sub.SubscriberSession, msg, 0); err != nil {
		log.Printf("bus: enqueue for subscription=%s: %v", sub.ID, err)
	}
}

func renderMessage(sub domain.EventSubscription, ev domain.Event) string {
	if sub.MessageTemplate == "" {
		return defaultSummary(ev)
	}
	r := strings.NewReplacer(
		"{{type}}", ev.Type,
		"{{session}}", ev.Session,
		"{{member}}", ev.MemberID,
		"{{team}}", ev.TeamID,
		"{{detail}}", ev.Detail,
	)
	return r.Replace(sub.MessageTemplate)
}

func defaultSummary(ev domain.Event) string {
	var sb strings.Builder
	sb.WriteString("[termrelay] ")
	sb.WriteString(ev.Type)
	if ev.Session != "" {
		sb.WriteString(" session=")
		sb.WriteString(ev.Session)
	}
	if ev.MemberID != "" {
		sb.WriteString(" member=")
		sb.WriteString(ev.MemberID)
	}
	if ev.TeamID != "" {
		sb.WriteString(" team=")
		sb.WriteString(ev.TeamID)
	}
	if ev.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(ev.Detail)
	}
	return sb.String()
}
