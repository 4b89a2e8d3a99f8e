// Package email adapts the provider Registry (SES primary, Resend fallback)
// to the uniform channel.Sender contract.
package email

import (
	"context"
	"fmt"

	"github.com/socialpulse/notifyhub/internal/channel/email/provider"
	"github.com/socialpulse/notifyhub/internal/domain"
)

// Sender sends notifications as emails via the configured provider registry.
type Sender struct {
	registry *provider.Registry
	fromAddr string
}

// NewSender wires a registry with SES as primary and Resend as fallback,
// the same ordering the teacher's sender service configures.
func NewSender(fromAddr string, emailsPerSecond int) *Sender {
	registry := provider.NewRegistry(emailsPerSecond)

	ses := provider.NewSESProvider()
	resend := provider.NewResendProvider()
	registry.Register(ses)
	registry.Register(resend)
	_ = registry.SetPrimary(ses.Name())
	_ = registry.SetFallback(resend.Name())

	return &Sender{registry: registry, fromAddr: fromAddr}
}

func (s *Sender) Channel() domain.Channel { return domain.ChannelEmail }

// Send emails target (an email address) the notification's rendered title
// and message.
func (s *Sender) Send(ctx context.Context, target string, n *domain.NotificationHistory) error {
	if target == "" {
		return fmt.Errorf("email address is empty")
	}

	req := &provider.Request{
		From:    s.fromAddr,
		To:      []string{target},
		Subject: n.Title,
		Body:    n.Message,
	}

	return s.registry.Send(ctx, req)
}
