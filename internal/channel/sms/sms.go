// Package sms implements the SMS channel against a generic REST gateway via
// net/http. No SMS provider SDK appears anywhere in this pipeline's
// dependency set, so this channel is built directly on the same
// request/classify-status shape the push and webhook senders use, rather
// than importing an unrelated vendor SDK.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Sender sends SMS notifications through a REST gateway authenticated with
// a bearer API key.
type Sender struct {
	httpClient *http.Client
	gatewayURL string
	apiKey     string
}

func NewSender(gatewayURL, apiKey string) *Sender {
	return &Sender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
	}
}

func (s *Sender) Channel() domain.Channel { return domain.ChannelSMS }

type gatewayRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send posts target (a phone number) and the notification message to the
// configured gateway.
func (s *Sender) Send(ctx context.Context, target string, n *domain.NotificationHistory) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("phone number is empty")
	}
	if s.gatewayURL == "" {
		return fmt.Errorf("SMS gateway URL is not configured")
	}

	body, err := json.Marshal(gatewayRequest{To: target, Body: n.Message})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SMS send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("SMS gateway returned status %d", resp.StatusCode)
	}

	return nil
}
