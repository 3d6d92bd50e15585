// Package postgres persists triggers and subscriptions as flat records,
// sufficient to reconstruct scheduler and bus state after a restart.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/djlord-it/termrelay/internal/domain"
)

// Store implements schedule.Persistence and bus.Persistence.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store with a per-operation timeout applied to every query.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryEnsureSchema)
	return err
}

// PingContext reports database connectivity for health checks.
func (s *Store) PingContext(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) SaveTrigger(ctx context.Context, t domain.ScheduledTrigger) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, querySaveTrigger,
		t.ID,
		t.TargetSession,
		t.Message,
		t.IsRecurring,
		t.IntervalAmount,
		string(t.IntervalUnit),
		t.CronExpression,
		t.Timezone,
		t.Active,
		t.Archived,
		t.FiredCount,
		t.NextFireAt,
		t.CreatedAt,
	)
	return err
}

func (s *Store) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryDeleteTrigger, id)
	return err
}

func (s *Store) ListTriggers(ctx context.Context) ([]domain.ScheduledTrigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListTriggers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ScheduledTrigger
	for rows.Next() {
		var t domain.ScheduledTrigger
		var unit string

		err := rows.Scan(
			&t.ID,
			&t.TargetSession,
			&t.Message,
			&t.IsRecurring,
			&t.IntervalAmount,
			&unit,
			&t.CronExpression,
			&t.Timezone,
			&t.Active,
			&t.Archived,
			&t.FiredCount,
			&t.NextFireAt,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		t.IntervalUnit = domain.IntervalUnit(unit)
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) SaveSubscription(ctx context.Context, sub domain.EventSubscription) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var expires sql.NullTime
	if sub.ExpiresAt != nil {
		expires = sql.NullTime{Time: *sub.ExpiresAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, querySaveSubscription,
		sub.ID,
		pq.Array(sub.EventTypes),
		sub.Filter.Session,
		sub.Filter.MemberID,
		sub.Filter.TeamID,
		sub.SubscriberSession,
		sub.OneShot,
		expires,
		sub.MessageTemplate,
		sub.RemindAfter.Milliseconds(),
		sub.CreatedAt,
	)
	return err
}

func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryDeleteSubscription, id)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]domain.EventSubscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListSubscriptions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EventSubscription
	for rows.Next() {
		var sub domain.EventSubscription
		var types pq.StringArray
		var expires sql.NullTime
		var remindMs int64

		err := rows.Scan(
			&sub.ID,
			&types,
			&sub.Filter.Session,
			&sub.Filter.MemberID,
			&sub.Filter.TeamID,
			&sub.SubscriberSession,
			&sub.OneShot,
			&expires,
			&sub.MessageTemplate,
			&remindMs,
			&sub.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sub.EventTypes = []string(types)
		if expires.Valid {
			t := expires.Time
			sub.ExpiresAt = &t
		}
		sub.RemindAfter = time.Duration(remindMs) * time.Millisecond
		result = append(result, sub)
	}
	return result, rows.Err()
}
