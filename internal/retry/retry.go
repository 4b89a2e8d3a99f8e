// Package retry provides retry logic with exponential backoff for transient
// failures. It is shared by the bus producer, every channel worker, and the
// fallback replay worker — retry behavior is threaded as an explicit Config
// value at each call site, never read off a package-global.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior for one operation.
type Config struct {
	MaxRetries     int           // maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64 // multiplier for exponential backoff
	JitterFraction float64 // +/- fraction of the computed backoff to jitter by
}

// DefaultConfig returns the pipeline's default retry configuration:
// initial 1s, max 60s, factor 2, 3 retries.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.1,
	}
}

// classification of substrings used by IsRetryable. Checked against the
// lowercased error string since the pipeline's callers span a Kafka client,
// two email SDKs, and plain net/http — none of which share an error type.
var nonRetryableSubstrings = []string{
	"not verified",
	"validation error",
	"invalid",
	"malformed",
	"is empty",
	"is required",
	"unauthorized",
	"forbidden",
}

var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary",
	"rate limit",
	"throttl",
	"503",
	"502",
	"504",
	"too many requests",
	"try again",
	"broken pipe",
	"eof",
}

// IsRetryable classifies err as a transient failure worth retrying.
// Unknown errors default to not-retryable: a caller that wants to retry
// something this classifier doesn't recognize should widen the lists above
// rather than retry blindly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	for _, s := range nonRetryableSubstrings {
		if strings.Contains(errStr, s) {
			return false
		}
	}

	for _, s := range retryableSubstrings {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}

// Do executes fn, retrying on transient errors (per IsRetryable) with
// exponential backoff until cfg.MaxRetries is exhausted or ctx is cancelled.
func Do(ctx context.Context, cfg Config, operation string, fn func() error) error {
	return do(ctx, cfg, operation, fn, IsRetryable)
}

// DoAlways executes fn, retrying every failure regardless of classification.
// Used by the fallback replay worker, where "failed to publish" always means
// "the bus is still down" rather than a permanent per-message failure.
func DoAlways(ctx context.Context, cfg Config, operation string, fn func() error) error {
	return do(ctx, cfg, operation, fn, func(error) bool { return true })
}

func do(ctx context.Context, cfg Config, operation string, fn func() error, retryable func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Info("operation succeeded after retry", "operation", operation, "attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if !retryable(err) {
			slog.Debug("error is not retryable, failing immediately", "operation", operation, "error", err)
			return err
		}

		if attempt >= cfg.MaxRetries {
			slog.Warn("max retries exceeded", "operation", operation, "attempts", attempt+1, "error", err)
			return err
		}

		backoff := CalculateBackoff(cfg, attempt)

		slog.Warn("operation failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", cfg.MaxRetries+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// CalculateBackoff returns the (jittered) backoff duration for the given
// retry attempt under cfg. Exported so other components gating work on the
// same curve — the fallback queue's replay backoff predicate, notably — never
// need to reimplement it.
func CalculateBackoff(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))

	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	jitterFrac := cfg.JitterFraction
	if jitterFrac == 0 {
		jitterFrac = 0.1
	}
	jitter := backoff * jitterFrac * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}
