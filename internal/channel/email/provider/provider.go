// Package provider implements the email provider Strategy pattern: a
// Registry selects a primary provider with ordered fallbacks and applies a
// token-bucket rate limit across all of them.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/socialpulse/notifyhub/internal/envutil"
)

// Request represents an email to be sent.
type Request struct {
	From    string
	To      []string
	Subject string
	Body    string // plain text body
	HTML    string // HTML body (optional)
}

// Provider is the interface every email backend implements.
type Provider interface {
	Name() string
	Send(ctx context.Context, req *Request) error
	IsConfigured() bool
}

// Registry manages email providers with fallback support and rate limiting.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	primary     string
	fallback    []string
	rateLimiter chan struct{}
}

// NewRegistry creates a registry with a token-bucket rate limiter refilled
// at emailsPerSecond.
func NewRegistry(emailsPerSecond int) *Registry {
	if emailsPerSecond <= 0 {
		emailsPerSecond = 2
	}

	r := &Registry{
		providers:   make(map[string]Provider),
		fallback:    make([]string, 0),
		rateLimiter: make(chan struct{}, emailsPerSecond),
	}

	go func() {
		interval := time.Second / time.Duration(emailsPerSecond)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case r.rateLimiter <- struct{}{}:
			default:
			}
		}
	}()

	for i := 0; i < emailsPerSecond; i++ {
		r.rateLimiter <- struct{}{}
	}

	slog.Info("email rate limiter initialized", "emails_per_second", emailsPerSecond)
	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	slog.Info("registered email provider", "name", p.Name(), "configured", p.IsConfigured())
}

func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.primary = name
	return nil
}

func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetPrimary returns the primary configured provider, falling back through
// r.fallback, then any configured provider, in that order.
func (r *Registry) GetPrimary() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.primary != "" {
		if p, ok := r.providers[r.primary]; ok && p.IsConfigured() {
			return p, nil
		}
	}

	for _, name := range r.fallback {
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			slog.Warn("primary email provider not configured, using fallback", "primary", r.primary, "fallback", name)
			return p, nil
		}
	}

	for name, p := range r.providers {
		if p.IsConfigured() {
			slog.Warn("using first available email provider", "name", name)
			return p, nil
		}
	}

	return nil, fmt.Errorf("no configured email provider available")
}

// Send sends req via the best available provider, retrying with fallbacks on
// failure, with a rate-limiter token required per attempt.
func (r *Registry) Send(ctx context.Context, req *Request) error {
	primary, err := r.GetPrimary()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.rateLimiter:
	}

	if err := primary.Send(ctx, req); err != nil {
		r.mu.RLock()
		fallbacks := r.fallback
		r.mu.RUnlock()

		for _, name := range fallbacks {
			p, ok := r.Get(name)
			if !ok || !p.IsConfigured() || p.Name() == primary.Name() {
				continue
			}

			slog.Warn("primary email provider failed, trying fallback", "primary", primary.Name(), "fallback", name, "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.rateLimiter:
			}

			if fallbackErr := p.Send(ctx, req); fallbackErr == nil {
				return nil
			}
		}
		return err
	}

	return nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// GetEnvOrDefault is re-exported for provider constructors that need an
// env-var default without importing envutil directly.
func GetEnvOrDefault(key, defaultValue string) string {
	return envutil.GetEnvOrDefault(key, defaultValue)
}
