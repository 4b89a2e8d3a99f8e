// Package config centralizes flag/env parsing for every cmd entrypoint, in
// the flag.StringVar-plus-env-fallback style used across the pipeline's
// services rather than a config-file framework.
package config

import (
	"flag"
	"time"

	"github.com/socialpulse/notifyhub/internal/envutil"
)

// Config holds every tunable the pipeline's components read. Each cmd wires
// only the fields it needs, but parsing lives in one place so the env var
// names and defaults never drift between binaries.
type Config struct {
	BusBrokers string
	DBURL      string
	RedisAddr  string

	HTTPAddr string

	PushProviderKey string
	EmailProviderKey string
	SMSProviderKey  string

	AggWindowLike    time.Duration
	AggWindowComment time.Duration
	AggWindowFollow  time.Duration

	ChannelPoolSize  int
	ChannelQueueSize int

	RetryMaxRetries     int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryBackoffFactor  float64

	FallbackPollInterval time.Duration

	ShardedMutexStripes int
}

// Load parses flags (with env-var defaults) into a Config. fs is exposed for
// testing; production entrypoints pass flag.CommandLine.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.BusBrokers, "bus-brokers", envutil.GetEnvOrDefault("BUS_BROKERS", "localhost:9092"), "comma-separated Kafka broker list")
	fs.StringVar(&cfg.DBURL, "db-url", envutil.GetEnvOrDefault("DB_URL", "postgres://localhost:5432/notifyhub?sslmode=disable"), "Postgres DSN")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", envutil.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", envutil.GetEnvOrDefault("HTTP_ADDR", ":8080"), "HTTP listen address")

	fs.StringVar(&cfg.PushProviderKey, "push-provider-key", envutil.GetEnvOrDefault("PUSH_PROVIDER_KEY", ""), "push provider webhook auth key")
	fs.StringVar(&cfg.EmailProviderKey, "email-provider-key", envutil.GetEnvOrDefault("EMAIL_PROVIDER_KEY", ""), "email provider key (not read: the email channel always uses ses as primary and resend as fallback)")
	fs.StringVar(&cfg.SMSProviderKey, "sms-provider-key", envutil.GetEnvOrDefault("SMS_PROVIDER_KEY", ""), "SMS gateway auth key")

	likeSec := fs.Int("agg-window-like-sec", envutil.GetEnvIntOrDefault("AGG_WINDOW_LIKE_SEC", 300), "like aggregation window, seconds")
	commentSec := fs.Int("agg-window-comment-sec", envutil.GetEnvIntOrDefault("AGG_WINDOW_COMMENT_SEC", 600), "comment aggregation window, seconds")
	followSec := fs.Int("agg-window-follow-sec", envutil.GetEnvIntOrDefault("AGG_WINDOW_FOLLOW_SEC", 1800), "follow aggregation window, seconds")

	fs.IntVar(&cfg.ChannelPoolSize, "channel-pool-size", envutil.GetEnvIntOrDefault("CHANNEL_POOL_SIZE", 32), "per-channel worker pool size")
	fs.IntVar(&cfg.ChannelQueueSize, "channel-queue-size", envutil.GetEnvIntOrDefault("CHANNEL_QUEUE_SIZE", 1024), "per-channel bounded queue size")

	fs.IntVar(&cfg.RetryMaxRetries, "retry-max", envutil.GetEnvIntOrDefault("RETRY_MAX", 3), "max retry attempts")
	retryInitSec := fs.Int("retry-initial-backoff-sec", 1, "initial backoff, seconds")
	retryMaxSec := fs.Int("retry-max-backoff-sec", 60, "max backoff, seconds")
	fs.Float64Var(&cfg.RetryBackoffFactor, "retry-backoff-factor", 2.0, "backoff multiplier")

	fallbackPollSec := fs.Int("fallback-poll-interval-sec", envutil.GetEnvIntOrDefault("FALLBACK_POLL_INTERVAL_SEC", 5), "fallback replay poll interval, seconds")

	fs.IntVar(&cfg.ShardedMutexStripes, "agg-mutex-stripes", 256, "number of stripes in the aggregation key mutex")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AggWindowLike = time.Duration(*likeSec) * time.Second
	cfg.AggWindowComment = time.Duration(*commentSec) * time.Second
	cfg.AggWindowFollow = time.Duration(*followSec) * time.Second
	cfg.RetryInitialBackoff = time.Duration(*retryInitSec) * time.Second
	cfg.RetryMaxBackoff = time.Duration(*retryMaxSec) * time.Second
	cfg.FallbackPollInterval = time.Duration(*fallbackPollSec) * time.Second

	return cfg, nil
}
