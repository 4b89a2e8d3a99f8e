package domain

import "time"

// FallbackQueueEntry is a durably-stored Event that could not be published to
// the bus (bus outage, write timeout) and is awaiting replay.
type FallbackQueueEntry struct {
	ID          int64
	Event       Event
	TargetID    string
	EnqueuedAt  time.Time
	RetryCount  int
	LastRetryAt *time.Time
	LastError   string
	Processed   bool
	ProcessedAt *time.Time
}

// PoisonThreshold is the retry count at which a fallback entry is surfaced
// as stuck rather than retried silently forever.
const PoisonThreshold = 10
