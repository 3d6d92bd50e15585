package api

import "time"

type CreateScheduleRequest struct {
	TargetSession string `json:"target_session"`
	Message       string `json:"message"`

	// Delay triggers: amount + unit, optionally recurring.
	DelayAmount int    `json:"delay_amount,omitempty"`
	DelayUnit   string `json:"delay_unit,omitempty"` // seconds | minutes | hours
	Recurring   bool   `json:"recurring,omitempty"`

	// Cron triggers: standard 5-field expression, optional seconds field.
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

type ScheduleResponse struct {
	ID             string `json:"id"`
	TargetSession  string `json:"target_session"`
	Message        string `json:"message"`
	Recurring      bool   `json:"recurring"`
	DelayAmount    int    `json:"delay_amount,omitempty"`
	DelayUnit      string `json:"delay_unit,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Active         bool   `json:"active"`
	Archived       bool   `json:"archived,omitempty"`
	FiredCount     int    `json:"fired_count"`
	NextFireAt     string `json:"next_fire_at"`
	CreatedAt      string `json:"created_at"`
}

type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
}

type ToggleResponse struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

type QueueStatusResponse struct {
	PendingCount   int                `json:"pending_count"`
	IsProcessing   bool               `json:"is_processing"`
	CurrentItem    *QueueItemResponse `json:"current_item,omitempty"`
	TotalProcessed int64              `json:"total_processed"`
	TotalFailed    int64              `json:"total_failed"`
}

type QueueItemResponse struct {
	ID            string `json:"id"`
	TargetSession string `json:"target_session"`
	Payload       string `json:"payload"`
	Attempts      int    `json:"attempts"`
	MaxAttempts   int    `json:"max_attempts"`
	Status        string `json:"status"`
	EnqueuedAt    string `json:"enqueued_at"`
	ReadyAt       string `json:"ready_at"`
}

type ListQueueItemsResponse struct {
	Items []QueueItemResponse `json:"items"`
}

type HistoryEntryResponse struct {
	DeliveryID     string `json:"delivery_id"`
	TargetSession  string `json:"target_session"`
	PayloadSummary string `json:"payload_summary"`
	SentAt         string `json:"sent_at"`
	Attempts       int    `json:"attempts"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

type HistoryResponse struct {
	Entries []HistoryEntryResponse `json:"entries"`
}

type ClearedResponse struct {
	Cleared int `json:"cleared"`
}

type CreateSubscriptionRequest struct {
	EventTypes        []string `json:"event_types"`
	SubscriberSession string   `json:"subscriber_session"`
	FilterSession     string   `json:"filter_session,omitempty"`
	FilterMemberID    string   `json:"filter_member_id,omitempty"`
	FilterTeamID      string   `json:"filter_team_id,omitempty"`
	OneShot           bool     `json:"one_shot,omitempty"`
	TTLSeconds        int      `json:"ttl_seconds,omitempty"`
	MessageTemplate   string   `json:"message_template,omitempty"`
	RemindAfterSecs   int      `json:"remind_after_seconds,omitempty"`
}

type SubscriptionResponse struct {
	ID                string   `json:"id"`
	EventTypes        []string `json:"event_types"`
	SubscriberSession string   `json:"subscriber_session"`
	FilterSession     string   `json:"filter_session,omitempty"`
	FilterMemberID    string   `json:"filter_member_id,omitempty"`
	FilterTeamID      string   `json:"filter_team_id,omitempty"`
	OneShot           bool     `json:"one_shot"`
	ExpiresAt         string   `json:"expires_at,omitempty"`
	MessageTemplate   string   `json:"message_template,omitempty"`
	RemindAfterSecs   int      `json:"remind_after_seconds,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

type ListSubscriptionsResponse struct {
	Subscriptions []SubscriptionResponse `json:"subscriptions"`
}

type PublishEventRequest struct {
	Type     string `json:"type"`
	Session  string `json:"session,omitempty"`
	MemberID string `json:"member_id,omitempty"`
	TeamID   string `json:"team_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type PublishEventResponse struct {
	Matched int `json:"matched"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
