package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventFilter narrows which events a subscription matches. All set fields
// must equal the event's attributes (AND semantics); empty fields match
// anything.
type EventFilter struct {
	Session  string
	MemberID string
	TeamID   string
}

// Matches reports whether ev satisfies every set filter field.
func (f EventFilter) Matches(ev Event) bool {
	if f.Session != "" && f.Session != ev.Session {
		return false
	}
	if f.MemberID != "" && f.MemberID != ev.MemberID {
		return false
	}
	if f.TeamID != "" && f.TeamID != ev.TeamID {
		return false
	}
	return true
}

// EventSubscription registers interest in a set of event types, delivered
// as messages to SubscriberSession.
type EventSubscription struct {
	ID                uuid.UUID
	EventTypes        []string
	Filter            EventFilter
	SubscriberSession string

	OneShot   bool
	ExpiresAt *time.Time

	// MessageTemplate overrides the default notification text. Placeholders:
	// {{type}}, {{session}}, {{member}}, {{team}}, {{detail}}.
	MessageTemplate string

	// RemindAfter, when positive, turns a match into a one-shot reminder
	// trigger instead of an immediate delivery.
	RemindAfter time.Duration

	CreatedAt time.Time
}

// WantsType reports whether the subscription's type set contains typ.
func (s EventSubscription) WantsType(typ string) bool {
	for _, t := range s.EventTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// Expired reports whether the subscription is past its expiry at now.
func (s EventSubscription) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Event is a status-change notification published on the bus.
type Event struct {
	Type       string
	Session    string
	MemberID   string
	TeamID     string
	Detail     string
	OccurredAt time.Time
}
