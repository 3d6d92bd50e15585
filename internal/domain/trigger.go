package domain

import (
	"time"

	"github.com/google/uuid"
)

type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
)

// Valid reports whether the unit is one of the supported values.
func (u IntervalUnit) Valid() bool {
	switch u {
	case UnitSeconds, UnitMinutes, UnitHours:
		return true
	}
	return false
}

// Duration converts amount expressed in this unit to a time.Duration.
func (u IntervalUnit) Duration(amount int) time.Duration {
	switch u {
	case UnitMinutes:
		return time.Duration(amount) * time.Minute
	case UnitHours:
		return time.Duration(amount) * time.Hour
	default:
		return time.Duration(amount) * time.Second
	}
}

// ScheduledTrigger is a scheduled intent to push a message into a target
// session, either once or on a recurring cadence. Interval triggers carry
// IntervalAmount/IntervalUnit; cron triggers carry CronExpression instead.
type ScheduledTrigger struct {
	ID            uuid.UUID
	TargetSession string
	Message       string

	IsRecurring    bool
	IntervalAmount int
	IntervalUnit   IntervalUnit
	CronExpression string
	Timezone       string // IANA timezone for cron triggers, defaults to UTC

	Active     bool
	Archived   bool
	FiredCount int

	NextFireAt time.Time
	CreatedAt  time.Time
}

// Interval returns the recurrence interval for interval triggers.
// Zero for cron triggers.
func (t ScheduledTrigger) Interval() time.Duration {
	if t.CronExpression != "" {
		return 0
	}
	return t.IntervalUnit.Duration(t.IntervalAmount)
}
