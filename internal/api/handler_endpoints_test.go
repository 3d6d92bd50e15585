package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/djlord-it/termrelay/internal/bus"
	"github.com/djlord-it/termrelay/internal/queue"
	"github.com/djlord-it/termrelay/internal/schedule"
	"github.com/djlord-it/termrelay/internal/store/memory"
)

// stubAdapter accepts every delivery. The queue worker is never started in
// these tests, so items stay pending and endpoint state is deterministic.
type stubAdapter struct{}

func (stubAdapter) Exists(context.Context, string) bool           { return true }
func (stubAdapter) Deliver(context.Context, string, string) error { return nil }

func newTestHandler() (*Handler, *queue.Queue) {
	q := queue.New(queue.Config{}, stubAdapter{})
	store := schedule.New(memory.New(), nil)
	b := bus.New(q, nil, 2)
	return NewHandler(store, q, b), q
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Schedule endpoints ---

func TestHandler_CreateSchedule_Delay(t *testing.T) {
	h, _ := newTestHandler()

	body := `{
		"target_session": "dev-1",
		"message": "check the build",
		"delay_amount": 5,
		"delay_unit": "minutes"
	}`
	w := doJSON(t, h, http.MethodPost, "/schedules", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp ScheduleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.TargetSession != "dev-1" {
		t.Errorf("TargetSession = %q, want dev-1", resp.TargetSession)
	}
	if !resp.Active {
		t.Error("Active should be true on create")
	}
	if resp.NextFireAt == "" {
		t.Error("NextFireAt should be set")
	}
}

func TestHandler_CreateSchedule_InvalidBody(t *testing.T) {
	h, _ := newTestHandler()

	w := doJSON(t, h, http.MethodPost, "/schedules", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandler_CreateSchedule_ValidationError(t *testing.T) {
	h, _ := newTestHandler()

	w := doJSON(t, h, http.MethodPost, "/schedules", `{"target_session": "dev-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_ListSchedules_FilterByTarget(t *testing.T) {
	h, _ := newTestHandler()

	for _, target := range []string{"dev-1", "dev-1", "dev-2"} {
		body := `{"target_session": "` + target + `", "message": "m", "delay_amount": 1, "delay_unit": "hours"}`
		if w := doJSON(t, h, http.MethodPost, "/schedules", body); w.Code != http.StatusCreated {
			t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, h, http.MethodGet, "/schedules?target_session=dev-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp ListSchedulesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Schedules) != 2 {
		t.Errorf("expected 2 schedules for dev-1, got %d", len(resp.Schedules))
	}
}

func TestHandler_GetSchedule(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"target_session": "dev-1", "message": "m", "delay_amount": 1, "delay_unit": "hours"}`
	created := doJSON(t, h, http.MethodPost, "/schedules", body)

	var sched ScheduleResponse
	if err := json.Unmarshal(created.Body.Bytes(), &sched); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/schedules/"+sched.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/schedules/00000000-0000-0000-0000-000000000099", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/schedules/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestHandler_CancelSchedule(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"target_session": "dev-1", "message": "m", "delay_amount": 1, "delay_unit": "hours"}`
	created := doJSON(t, h, http.MethodPost, "/schedules", body)

	var sched ScheduleResponse
	if err := json.Unmarshal(created.Body.Bytes(), &sched); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	w := doJSON(t, h, http.MethodDelete, "/schedules/"+sched.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	// Cancelled schedules no longer appear in the default list.
	list := doJSON(t, h, http.MethodGet, "/schedules", "")
	var resp ListSchedulesResponse
	if err := json.Unmarshal(list.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Schedules) != 0 {
		t.Errorf("expected 0 schedules after cancel, got %d", len(resp.Schedules))
	}

	// Second cancel of the same id is a 404.
	w = doJSON(t, h, http.MethodDelete, "/schedules/"+sched.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on repeat cancel, got %d", w.Code)
	}
}

func TestHandler_ToggleSchedule(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"target_session": "dev-1", "message": "m", "delay_amount": 1, "delay_unit": "hours"}`
	created := doJSON(t, h, http.MethodPost, "/schedules", body)

	var sched ScheduleResponse
	if err := json.Unmarshal(created.Body.Bytes(), &sched); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	w := doJSON(t, h, http.MethodPost, "/schedules/"+sched.ID+"/toggle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var toggled ToggleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &toggled); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if toggled.Active {
		t.Error("expected schedule paused after first toggle")
	}

	w = doJSON(t, h, http.MethodPost, "/schedules/"+sched.ID+"/toggle", "")
	if err := json.Unmarshal(w.Body.Bytes(), &toggled); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !toggled.Active {
		t.Error("expected schedule active after second toggle")
	}
}

// --- Queue endpoints ---

func TestHandler_QueueStatusAndPending(t *testing.T) {
	h, q := newTestHandler()

	if _, err := q.Enqueue(context.Background(), "dev-1", "hello", 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/queue/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st QueueStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if st.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1", st.PendingCount)
	}

	w = doJSON(t, h, http.MethodGet, "/queue/pending", "")
	var pending ListQueueItemsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(pending.Items) != 1 || pending.Items[0].Payload != "hello" {
		t.Errorf("unexpected pending items: %+v", pending.Items)
	}
}

func TestQueueStatusResponse_CarriesWideCounters(t *testing.T) {
	// The queue counters are 64-bit; the response must hold them without
	// narrowing.
	st := queue.Status{TotalProcessed: 1 << 40, TotalFailed: 1<<40 + 1}
	resp := QueueStatusResponse{
		TotalProcessed: st.TotalProcessed,
		TotalFailed:    st.TotalFailed,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded QueueStatusResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.TotalProcessed != st.TotalProcessed || decoded.TotalFailed != st.TotalFailed {
		t.Errorf("counters = %d/%d, want %d/%d",
			decoded.TotalProcessed, decoded.TotalFailed, st.TotalProcessed, st.TotalFailed)
	}
}

func TestHandler_QueueCancelItem(t *testing.T) {
	h, q := newTestHandler()

	item, err := q.Enqueue(context.Background(), "dev-1", "hello", 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := doJSON(t, h, http.MethodDelete, "/queue/items/"+item.ID.String(), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/queue/items/"+item.ID.String(), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on repeat cancel, got %d", w.Code)
	}
}

func TestHandler_QueueClearPending(t *testing.T) {
	h, q := newTestHandler()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(context.Background(), "dev-1", "msg", 0); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	w := doJSON(t, h, http.MethodDelete, "/queue/pending", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var cleared ClearedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cleared); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if cleared.Cleared != 3 {
		t.Errorf("Cleared = %d, want 3", cleared.Cleared)
	}
}

func TestHandler_QueueHistory_BadLimit(t *testing.T) {
	h, _ := newTestHandler()

	w := doJSON(t, h, http.MethodGet, "/queue/history?limit=9999", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Subscription and event endpoints ---

func TestHandler_SubscriptionLifecycle(t *testing.T) {
	h, _ := newTestHandler()

	body := `{
		"event_types": ["task_completed"],
		"subscriber_session": "observer",
		"filter_team_id": "team-1",
		"one_shot": true
	}`
	created := doJSON(t, h, http.MethodPost, "/subscriptions", body)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}

	var sub SubscriptionResponse
	if err := json.Unmarshal(created.Body.Bytes(), &sub); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !sub.OneShot || sub.FilterTeamID != "team-1" {
		t.Errorf("unexpected subscription: %+v", sub)
	}

	w := doJSON(t, h, http.MethodGet, "/subscriptions?subscriber_session=observer", "")
	var list ListSubscriptionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(list.Subscriptions) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(list.Subscriptions))
	}

	w = doJSON(t, h, http.MethodDelete, "/subscriptions/"+sub.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodDelete, "/subscriptions/"+sub.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on repeat delete, got %d", w.Code)
	}
}

func TestHandler_Subscribe_RateLimited(t *testing.T) {
	h, _ := newTestHandler() // bus ceiling is 2 in tests

	body := `{"event_types": ["task_completed"], "subscriber_session": "greedy"}`
	for i := 0; i < 2; i++ {
		if w := doJSON(t, h, http.MethodPost, "/subscriptions", body); w.Code != http.StatusCreated {
			t.Fatalf("subscribe %d: expected 201, got %d", i, w.Code)
		}
	}

	w := doJSON(t, h, http.MethodPost, "/subscriptions", body)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_PublishEvent_EnqueuesDelivery(t *testing.T) {
	h, q := newTestHandler()

	body := `{"event_types": ["task_completed"], "subscriber_session": "observer"}`
	if w := doJSON(t, h, http.MethodPost, "/subscriptions", body); w.Code != http.StatusCreated {
		t.Fatalf("subscribe failed: %d", w.Code)
	}

	w := doJSON(t, h, http.MethodPost, "/events", `{"type": "task_completed", "detail": "build green"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp PublishEventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Matched != 1 {
		t.Errorf("Matched = %d, want 1", resp.Matched)
	}
	if st := q.Status(); st.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1", st.PendingCount)
	}
}

func TestHandler_PublishEvent_MissingType(t *testing.T) {
	h, _ := newTestHandler()

	w := doJSON(t, h, http.MethodPost, "/events", `{"detail": "no type"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Health endpoint ---

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func TestHandler_Health_Simple(t *testing.T) {
	h, _ := newTestHandler()

	w := doJSON(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestHandler_Health_VerboseDegraded(t *testing.T) {
	h, _ := newTestHandler()
	h.WithHealthChecker(&mockHealthChecker{
		pingFn: func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := doJSON(t, h, http.MethodGet, "/health?verbose=true", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
}

func TestHandler_UnknownRoute(t *testing.T) {
	h, _ := newTestHandler()

	w := doJSON(t, h, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
