package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/termrelay/internal/bus"
	"github.com/djlord-it/termrelay/internal/domain"
	"github.com/djlord-it/termrelay/internal/queue"
	"github.com/djlord-it/termrelay/internal/schedule"
)

// History pagination defaults and limits.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// ScheduleStore manages durable triggers.
type ScheduleStore interface {
	Create(ctx context.Context, req schedule.CreateRequest) (domain.ScheduledTrigger, error)
	Cancel(ctx context.Context, id uuid.UUID) bool
	Toggle(ctx context.Context, id uuid.UUID) (active bool, ok bool)
	Get(id uuid.UUID) (domain.ScheduledTrigger, bool)
	List(filter schedule.ListFilter) []domain.ScheduledTrigger
}

// DeliveryQueue exposes delivery state and admin operations.
type DeliveryQueue interface {
	Cancel(id uuid.UUID) bool
	ClearPending() int
	Status() queue.Status
	Pending() []domain.DeliveryItem
	History(limit int) []domain.DeliveryLogEntry
}

// EventBus manages subscriptions and dispatches published events.
type EventBus interface {
	Subscribe(ctx context.Context, req bus.SubscribeRequest) (domain.EventSubscription, error)
	Unsubscribe(ctx context.Context, id uuid.UUID) bool
	Get(id uuid.UUID) (domain.EventSubscription, bool)
	List(subscriberSession string) []domain.EventSubscription
	Publish(ctx context.Context, ev domain.Event) int
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store ScheduleStore
	queue DeliveryQueue
	bus   EventBus
	db    HealthChecker
}

func NewHandler(store ScheduleStore, q DeliveryQueue, b EventBus) *Handler {
	return &Handler{store: store, queue: q, bus: b}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/schedules" && r.Method == http.MethodPost:
		h.createSchedule(w, r)
	case path == "/schedules" && r.Method == http.MethodGet:
		h.listSchedules(w, r)
	case strings.HasPrefix(path, "/schedules/") && strings.HasSuffix(path, "/toggle") && r.Method == http.MethodPost:
		h.toggleSchedule(w, r)
	case strings.HasPrefix(path, "/schedules/") && r.Method == http.MethodGet:
		h.getSchedule(w, r)
	case strings.HasPrefix(path, "/schedules/") && r.Method == http.MethodDelete:
		h.cancelSchedule(w, r)

	case path == "/queue/status" && r.Method == http.MethodGet:
		h.queueStatus(w, r)
	case path == "/queue/pending" && r.Method == http.MethodGet:
		h.queuePending(w, r)
	case path == "/queue/pending" && r.Method == http.MethodDelete:
		h.queueClearPending(w, r)
	case path == "/queue/history" && r.Method == http.MethodGet:
		h.queueHistory(w, r)
	case strings.HasPrefix(path, "/queue/items/") && r.Method == http.MethodDelete:
		h.queueCancelItem(w, r)

	case path == "/subscriptions" && r.Method == http.MethodPost:
		h.createSubscription(w, r)
	case path == "/subscriptions" && r.Method == http.MethodGet:
		h.listSubscriptions(w, r)
	case strings.HasPrefix(path, "/subscriptions/") && r.Method == http.MethodGet:
		h.getSubscription(w, r)
	case strings.HasPrefix(path, "/subscriptions/") && r.Method == http.MethodDelete:
		h.deleteSubscription(w, r)

	case path == "/events" && r.Method == http.MethodPost:
		h.publishEvent(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateSchedule(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trigger, err := h.store.Create(r.Context(), schedule.CreateRequest{
		TargetSession:  req.TargetSession,
		Message:        req.Message,
		DelayAmount:    req.DelayAmount,
		DelayUnit:      domain.IntervalUnit(req.DelayUnit),
		IsRecurring:    req.Recurring,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("api: create schedule error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleResponse(trigger))
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	filter := schedule.ListFilter{
		TargetSession:   r.URL.Query().Get("target_session"),
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
	}

	triggers := h.store.List(filter)

	resp := ListSchedulesResponse{Schedules: make([]ScheduleResponse, len(triggers))}
	for i, tr := range triggers {
		resp.Schedules[i] = toScheduleResponse(tr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "schedules")
	if !ok {
		return
	}

	trigger, found := h.store.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(trigger))
}

func (h *Handler) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "schedules")
	if !ok {
		return
	}

	if !h.store.Cancel(r.Context(), id) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleSchedule(w http.ResponseWriter, r *http.Request) {
	// Path shape: /schedules/{id}/toggle
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "schedules" || parts[2] != "toggle" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	active, ok := h.store.Toggle(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{ID: id.String(), Active: active})
}

func (h *Handler) queueStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.queue.Status()
	resp := QueueStatusResponse{
		PendingCount:   st.PendingCount,
		IsProcessing:   st.IsProcessing,
		TotalProcessed: st.TotalProcessed,
		TotalFailed:    st.TotalFailed,
	}
	if st.CurrentItem != nil {
		item := toQueueItemResponse(*st.CurrentItem)
		resp.CurrentItem = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) queuePending(w http.ResponseWriter, _ *http.Request) {
	items := h.queue.Pending()
	resp := ListQueueItemsResponse{Items: make([]QueueItemResponse, len(items))}
	for i, item := range items {
		resp.Items[i] = toQueueItemResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) queueClearPending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ClearedResponse{Cleared: h.queue.ClearPending()})
}

func (h *Handler) queueHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries := h.queue.History(limit)
	resp := HistoryResponse{Entries: make([]HistoryEntryResponse, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = HistoryEntryResponse{
			DeliveryID:     e.DeliveryID.String(),
			TargetSession:  e.TargetSession,
			PayloadSummary: e.PayloadSummary,
			SentAt:         formatTime(e.SentAt),
			Attempts:       e.Attempts,
			Success:        e.Success,
			Error:          e.Error,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) queueCancelItem(w http.ResponseWriter, r *http.Request) {
	// Path shape: /queue/items/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "queue" || parts[1] != "items" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if !h.queue.Cancel(id) {
		writeError(w, http.StatusNotFound, "item not found or not pending")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateSubscription(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.bus.Subscribe(r.Context(), bus.SubscribeRequest{
		EventTypes: req.EventTypes,
		Filter: domain.EventFilter{
			Session:  req.FilterSession,
			MemberID: req.FilterMemberID,
			TeamID:   req.FilterTeamID,
		},
		SubscriberSession: req.SubscriberSession,
		OneShot:           req.OneShot,
		TTL:               time.Duration(req.TTLSeconds) * time.Second,
		MessageTemplate:   req.MessageTemplate,
		RemindAfter:       time.Duration(req.RemindAfterSecs) * time.Second,
	})
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs := h.bus.List(r.URL.Query().Get("subscriber_session"))
	resp := ListSubscriptionsResponse{Subscriptions: make([]SubscriptionResponse, len(subs))}
	for i, sub := range subs {
		resp.Subscriptions[i] = toSubscriptionResponse(sub)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "subscriptions")
	if !ok {
		return
	}

	sub, found := h.bus.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "subscriptions")
	if !ok {
		return
	}

	if !h.bus.Unsubscribe(r.Context(), id) {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req PublishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validatePublishEvent(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matched := h.bus.Publish(r.Context(), domain.Event{
		Type:     req.Type,
		Session:  req.Session,
		MemberID: req.MemberID,
		TeamID:   req.TeamID,
		Detail:   req.Detail,
	})
	writeJSON(w, http.StatusAccepted, PublishEventResponse{Matched: matched})
}

func toScheduleResponse(tr domain.ScheduledTrigger) ScheduleResponse {
	return ScheduleResponse{
		ID:             tr.ID.String(),
		TargetSession:  tr.TargetSession,
		Message:        tr.Message,
		Recurring:      tr.IsRecurring,
		DelayAmount:    tr.IntervalAmount,
		DelayUnit:      string(tr.IntervalUnit),
		CronExpression: tr.CronExpression,
		Timezone:       tr.Timezone,
		Active:         tr.Active,
		Archived:       tr.Archived,
		FiredCount:     tr.FiredCount,
		NextFireAt:     formatTime(tr.NextFireAt),
		CreatedAt:      formatTime(tr.CreatedAt),
	}
}

func toQueueItemResponse(item domain.DeliveryItem) QueueItemResponse {
	return QueueItemResponse{
		ID:            item.ID.String(),
		TargetSession: item.TargetSession,
		Payload:       item.Payload,
		Attempts:      item.Attempts,
		MaxAttempts:   item.MaxAttempts,
		Status:        string(item.Status),
		EnqueuedAt:    formatTime(item.EnqueuedAt),
		ReadyAt:       formatTime(item.ReadyAt),
	}
}

func toSubscriptionResponse(sub domain.EventSubscription) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:                sub.ID.String(),
		EventTypes:        sub.EventTypes,
		SubscriberSession: sub.SubscriberSession,
		FilterSession:     sub.Filter.Session,
		FilterMemberID:    sub.Filter.MemberID,
		FilterTeamID:      sub.Filter.TeamID,
		OneShot:           sub.OneShot,
		MessageTemplate:   sub.MessageTemplate,
		RemindAfterSecs:   int(sub.RemindAfter / time.Second),
		CreatedAt:         formatTime(sub.CreatedAt),
	}
	if sub.ExpiresAt != nil {
		resp.ExpiresAt = formatTime(*sub.ExpiresAt)
	}
	return resp
}

// pathID extracts the UUID from a two-segment path like /{prefix}/{id}.
func pathID(w http.ResponseWriter, path, prefix string) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != prefix {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parseHistoryLimit extracts and validates the limit query parameter.
func parseHistoryLimit(r *http.Request) (int, error) {
	limit := DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, err
		}
		if limit < 0 {
			return 0, strconv.ErrRange
		}
		if limit > MaxHistoryLimit {
			return 0, &limitExceededError{max: MaxHistoryLimit}
		}
		if limit == 0 {
			limit = DefaultHistoryLimit
		}
	}
	return limit, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
