// Package push implements the realtime push channel as an opaque HTTP
// webhook POST, the same shape the teacher's webhook and Slack senders use
// for their "opaque HTTP endpoint" providers — this pipeline has no push SDK
// in its dependency set, so a push "provider" is any endpoint that accepts
// a JSON POST and returns 2xx.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Sender sends push notifications via HTTP POST to a per-user device
// endpoint URL.
type Sender struct {
	httpClient *http.Client
	authKey    string
}

func NewSender(authKey string) *Sender {
	return &Sender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		authKey:    authKey,
	}
}

func (s *Sender) Channel() domain.Channel { return domain.ChannelPush }

type payload struct {
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

func isValidURL(endpoint string) bool {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// Send POSTs the notification to the target device endpoint.
func (s *Sender) Send(ctx context.Context, target string, n *domain.NotificationHistory) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("push endpoint is empty")
	}
	if !isValidURL(target) {
		return fmt.Errorf("invalid push endpoint: %q (must be a valid HTTP/HTTPS URL)", target)
	}

	body, err := json.Marshal(payload{
		NotificationID: n.NotificationID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.authKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
