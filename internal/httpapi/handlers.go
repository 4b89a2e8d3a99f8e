// Package httpapi is the inbound HTTP surface: enqueue_event,
// list_notifications, mark_read, get/update_preferences, and
// get_fallback_queue_stats.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// EventPublisher is implemented by bus.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, e *domain.Event) error
}

// NotificationReader is implemented by history.Store.
type NotificationReader interface {
	ListForUser(ctx context.Context, targetUserID string, limit int) ([]domain.NotificationHistory, error)
	MarkRead(ctx context.Context, notificationID, targetUserID string) error
}

// PreferenceStore is implemented by preference.Store.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	Update(ctx context.Context, p *domain.NotificationPreference) error
}

// FallbackStats is implemented by fallback.Store.
type FallbackStats interface {
	CountPending(ctx context.Context) (int, error)
	CountStuck(ctx context.Context) (int, error)
}

// Handlers holds the dependencies every inbound operation needs.
type Handlers struct {
	publisher   EventPublisher
	history     NotificationReader
	preferences PreferenceStore
	fallback    FallbackStats
}

func NewHandlers(publisher EventPublisher, history NotificationReader, preferences PreferenceStore, fallback FallbackStats) *Handlers {
	return &Handlers{
		publisher:   publisher,
		history:     history,
		preferences: preferences,
		fallback:    fallback,
	}
}

// enqueueEventRequest mirrors domain.Event's wire shape.
type enqueueEventRequest struct {
	EventID       string            `json:"event_id"`
	Type          string            `json:"type"`
	ActorID       string            `json:"actor_id"`
	TargetUserID  string            `json:"target_user_id"`
	ObjectID      string            `json:"object_id"`
	SchemaVersion int               `json:"schema_version"`
	Extra         map[string]string `json:"extra"`
}

// EnqueueEvent accepts a raw social-graph event and publishes it to the bus.
func (h *Handlers) EnqueueEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enqueueEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	e := &domain.Event{
		EventID:       req.EventID,
		Type:          domain.EventType(req.Type),
		ActorID:       req.ActorID,
		TargetUserID:  req.TargetUserID,
		ObjectID:      req.ObjectID,
		OccurredAt:    time.Now(),
		SchemaVersion: req.SchemaVersion,
		Extra:         req.Extra,
	}
	e.Priority = domain.DefaultPriorityForType(e.Type)

	if err := e.Validate(); err != nil {
		http.Error(w, "Invalid event: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.publisher.Publish(ctx, e); err != nil {
		slog.Error("failed to publish event", "error", err, "event_id", e.EventID)
		http.Error(w, "Failed to enqueue event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"event_id": e.EventID, "status": "accepted"})
}

// ListNotifications returns recent notifications for a user.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("target_user_id")
	if userID == "" {
		http.Error(w, "target_user_id query parameter is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	ctx := r.Context()
	notifications, err := h.history.ListForUser(ctx, userID, limit)
	if err != nil {
		slog.Error("failed to list notifications", "error", err, "target_user_id", userID)
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

type markReadRequest struct {
	NotificationID string `json:"notification_id"`
	TargetUserID   string `json:"target_user_id"`
}

// MarkRead marks a single notification as read on behalf of its owner.
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.NotificationID == "" || req.TargetUserID == "" {
		http.Error(w, "notification_id and target_user_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var notFound *domain.NotFoundError
	if err := h.history.MarkRead(ctx, req.NotificationID, req.TargetUserID); err != nil {
		if errors.As(err, &notFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to mark notification read", "error", err, "notification_id", req.NotificationID)
		http.Error(w, "Failed to mark notification read", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences returns a user's notification preferences.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pref, err := h.preferences.Get(ctx, userID)
	if err != nil {
		slog.Error("failed to load preferences", "error", err, "user_id", userID)
		http.Error(w, "Failed to load preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pref)
}

// UpdatePreferences overwrites a user's notification preferences.
func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var pref domain.NotificationPreference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if pref.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.preferences.Update(ctx, &pref); err != nil {
		slog.Error("failed to update preferences", "error", err, "user_id", pref.UserID)
		http.Error(w, "Failed to update preferences", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetFallbackQueueStats exposes the fallback queue's depth and poison count,
// used by operators to tell "bus is degraded" from "bus is fully down".
func (h *Handlers) GetFallbackQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	pending, err := h.fallback.CountPending(ctx)
	if err != nil {
		slog.Error("failed to count pending fallback entries", "error", err)
		http.Error(w, "Failed to load fallback queue stats", http.StatusInternalServerError)
		return
	}
	stuck, err := h.fallback.CountStuck(ctx)
	if err != nil {
		slog.Error("failed to count stuck fallback entries", "error", err)
		http.Error(w, "Failed to load fallback queue stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"pending": pending, "stuck": stuck})
}
