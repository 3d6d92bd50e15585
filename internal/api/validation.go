package api

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/djlord-it/termrelay/internal/domain"
)

func validateCreateSchedule(req CreateScheduleRequest) error {
	if req.TargetSession == "" {
		return fmt.Errorf("target_session is required")
	}
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}

	hasDelay := req.DelayAmount != 0 || req.DelayUnit != ""
	hasCron := req.CronExpression != ""

	switch {
	case hasDelay && hasCron:
		return fmt.Errorf("delay and cron_expression are mutually exclusive")
	case !hasDelay && !hasCron:
		return fmt.Errorf("either delay_amount/delay_unit or cron_expression is required")
	}

	if hasDelay {
		if req.DelayAmount <= 0 {
			return fmt.Errorf("delay_amount must be positive")
		}
		if !domain.IntervalUnit(req.DelayUnit).Valid() {
			return fmt.Errorf("delay_unit must be seconds, minutes or hours")
		}
	}

	if hasCron {
		if req.Recurring {
			return fmt.Errorf("recurring is implied by cron_expression")
		}
		if err := validateCron(req.CronExpression); err != nil {
			return fmt.Errorf("invalid cron_expression: %w", err)
		}
		tz := req.Timezone
		if tz == "" {
			tz = "UTC"
		}
		if err := validateTimezone(tz); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}

	return nil
}

func validateCreateSubscription(req CreateSubscriptionRequest) error {
	if len(req.EventTypes) == 0 {
		return fmt.Errorf("event_types is required")
	}
	for _, et := range req.EventTypes {
		if et == "" {
			return fmt.Errorf("event_types must not contain empty strings")
		}
	}
	if req.SubscriberSession == "" {
		return fmt.Errorf("subscriber_session is required")
	}
	if req.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must not be negative")
	}
	if req.RemindAfterSecs < 0 {
		return fmt.Errorf("remind_after_seconds must not be negative")
	}
	return nil
}

func validatePublishEvent(req PublishEventRequest) error {
	if req.Type == "" {
		return fmt.Errorf("type is required")
	}
	return nil
}

func validateCron(expr string) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := parser.Parse(expr)
	return err
}

func validateTimezone(tz string) error {
	_, err := time.LoadLocation(tz)
	return err
}
