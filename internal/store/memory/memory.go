// Package memory is the in-process persistence used when no DATABASE_URL
// is configured. State does not survive a restart; the interfaces match
// the postgres store so the rest of the engine cannot tell the difference.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/djlord-it/termrelay/internal/domain"
)

type Store struct {
	mu            sync.Mutex
	triggers      map[uuid.UUID]domain.ScheduledTrigger
	subscriptions map[uuid.UUID]domain.EventSubscription
}

func New() *Store {
	return &Store{
		triggers:      make(map[uuid.UUID]domain.ScheduledTrigger),
		subscriptions: make(map[uuid.UUID]domain.EventSubscription),
	}
}

func (s *Store) SaveTrigger(ctx context.Context, t domain.ScheduledTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[t.ID] = t
	return nil
}

func (s *Store) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.triggers, id)
	return nil
}

func (s *Store) ListTriggers(ctx context.Context) ([]domain.ScheduledTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScheduledTrigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub domain.EventSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]domain.EventSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	return out, nil
}
