package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/socialpulse/notifyhub/internal/domain"
)

type fakePublisher struct {
	published []*domain.Event
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, e *domain.Event) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, e)
	return nil
}

type fakeNotificationReader struct {
	list     []domain.NotificationHistory
	markErr  error
	markedID string
}

func (f *fakeNotificationReader) ListForUser(ctx context.Context, targetUserID string, limit int) ([]domain.NotificationHistory, error) {
	return f.list, nil
}

func (f *fakeNotificationReader) MarkRead(ctx context.Context, notificationID, targetUserID string) error {
	f.markedID = notificationID
	return f.markErr
}

type fakePreferenceStore struct {
	pref    *domain.NotificationPreference
	updated *domain.NotificationPreference
}

func (f *fakePreferenceStore) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	return f.pref, nil
}

func (f *fakePreferenceStore) Update(ctx context.Context, p *domain.NotificationPreference) error {
	f.updated = p
	return nil
}

type fakeFallbackStats struct {
	pending, stuck int
}

func (f *fakeFallbackStats) CountPending(ctx context.Context) (int, error) { return f.pending, nil }
func (f *fakeFallbackStats) CountStuck(ctx context.Context) (int, error)   { return f.stuck, nil }

func newTestHandlers() (*Handlers, *fakePublisher, *fakeNotificationReader, *fakePreferenceStore, *fakeFallbackStats) {
	pub := &fakePublisher{}
	hist := &fakeNotificationReader{}
	prefs := &fakePreferenceStore{pref: &domain.NotificationPreference{UserID: "u1"}}
	fb := &fakeFallbackStats{}
	return NewHandlers(pub, hist, prefs, fb), pub, hist, prefs, fb
}

func TestEnqueueEvent_PublishesValidEvent(t *testing.T) {
	h, pub, _, _, _ := newTestHandlers()

	body, _ := json.Marshal(enqueueEventRequest{
		EventID:      "e1",
		Type:         string(domain.EventMention),
		ActorID:      "actor1",
		TargetUserID: "user1",
		ObjectID:     "post1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.EnqueueEvent(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusAccepted, w.Body.String())
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.published))
	}
	if pub.published[0].Priority != domain.PriorityHigh {
		t.Errorf("expected mention to default to high priority, got %v", pub.published[0].Priority)
	}
}

func TestEnqueueEvent_RejectsInvalidEvent(t *testing.T) {
	h, pub, _, _, _ := newTestHandlers()

	body, _ := json.Marshal(enqueueEventRequest{EventID: "e1", Type: "not-a-type", ActorID: "a", TargetUserID: "u"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.EnqueueEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(pub.published) != 0 {
		t.Errorf("expected no events published for invalid input")
	}
}

func TestMarkRead_RequiresBothIDs(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	h.MarkRead(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMarkRead_NotFoundMapsTo404(t *testing.T) {
	h, _, hist, _, _ := newTestHandlers()
	hist.markErr = &domain.NotFoundError{Resource: "notification", Key: "n1"}

	body, _ := json.Marshal(markReadRequest{NotificationID: "n1", TargetUserID: "u1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.MarkRead(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetFallbackQueueStats(t *testing.T) {
	h, _, _, _, fb := newTestHandlers()
	fb.pending = 3
	fb.stuck = 1

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fallback-queue/stats", nil)
	w := httptest.NewRecorder()

	h.GetFallbackQueueStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var out map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if out["pending"] != 3 || out["stuck"] != 1 {
		t.Errorf("got %+v, want pending=3 stuck=1", out)
	}
}

func TestUpdatePreferences_RequiresUserID(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/preferences", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	h.UpdatePreferences(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
