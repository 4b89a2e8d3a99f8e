package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/socialpulse/notifyhub/internal/domain"
)

const keyPrefix = "aggbucket:"
const versionSuffix = ":version"

// bucketJSON is the wire shape the Lua scripts read and write; its field
// names must match the scripts in lua_scripts.go exactly.
type bucketJSON struct {
	ActorIDs      []string `json:"actor_ids"`
	EventIDs      []string `json:"event_ids"`
	Count         int      `json:"count"`
	FirstEventAt  int64    `json:"first_event_at"`
	LastEventAt   int64    `json:"last_event_at"`
	DebounceUntil int64    `json:"debounce_until"`
	Sent          bool     `json:"sent"`
}

func (b bucketJSON) toDomain(key domain.AggregationKey, version int64) *domain.AggregationBucket {
	return &domain.AggregationBucket{
		Key:           key,
		ActorIDs:      b.ActorIDs,
		EventIDs:      b.EventIDs,
		Count:         b.Count,
		FirstEventAt:  time.Unix(0, b.FirstEventAt),
		LastEventAt:   time.Unix(0, b.LastEventAt),
		DebounceUntil: time.Unix(0, b.DebounceUntil),
		Sent:          b.Sent,
		Version:       version,
	}
}

// Store is the Redis-backed Aggregation State Store.
type Store struct {
	redis     *redis.Client
	foldSHA   *redis.Script
	markSent  *redis.Script
}

// NewStore creates a Store backed by the given Redis client.
func NewStore(redisClient *redis.Client) *Store {
	fold, markSent := newLuaScripts()
	return &Store{redis: redisClient, foldSHA: fold, markSent: markSent}
}

func bucketKey(k domain.AggregationKey) string {
	return keyPrefix + k.String()
}

func versionKey(k domain.AggregationKey) string {
	return keyPrefix + k.String() + versionSuffix
}

// FoldEvent atomically folds actorID/eventID into the bucket at key,
// extending its debounce deadline by window unless the bucket has already
// sent this cycle. maxTrackedActors bounds how many distinct actor ids are
// retained by name; eventID is always appended, uncapped.
func (s *Store) FoldEvent(ctx context.Context, key domain.AggregationKey, actorID, eventID string, now time.Time, window time.Duration, maxTrackedActors int) error {
	_, err := s.foldSHA.Run(ctx, s.redis,
		[]string{bucketKey(key), versionKey(key)},
		actorID, now.UnixNano(), maxTrackedActors, window.Nanoseconds(), eventID,
	).Result()
	if err != nil {
		return fmt.Errorf("failed to fold event into bucket %s: %w", key, err)
	}
	return nil
}

// Get loads the current bucket for key, or nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, key domain.AggregationKey) (*domain.AggregationBucket, error) {
	raw, err := s.redis.Get(ctx, bucketKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket %s: %w", key, err)
	}

	var bj bucketJSON
	if err := json.Unmarshal(raw, &bj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket %s: %w", key, err)
	}

	version, _ := s.redis.Get(ctx, versionKey(key)).Int64()
	return bj.toDomain(key, version), nil
}

// MarkSent atomically flips the bucket's Sent flag so later events in the
// same cycle fold in without reopening the debounce window.
func (s *Store) MarkSent(ctx context.Context, key domain.AggregationKey) error {
	_, err := s.markSent.Run(ctx, s.redis, []string{bucketKey(key), versionKey(key)}).Result()
	if err != nil {
		return fmt.Errorf("failed to mark bucket %s sent: %w", key, err)
	}
	return nil
}

// Delete removes a bucket once its cycle has fully closed (sent and past its
// debounce window with no further folds expected).
func (s *Store) Delete(ctx context.Context, key domain.AggregationKey) error {
	return s.redis.Del(ctx, bucketKey(key), versionKey(key)).Err()
}

// ScanReady scans all tracked bucket keys and returns those whose debounce
// window has elapsed and have not yet sent — used both by the steady-state
// poll loop and by the startup bucket rebuild (Redis already holds the
// durable state, so "rebuild" here means resuming the scan, not recomputing
// from history).
func (s *Store) ScanReady(ctx context.Context, now time.Time) ([]*domain.AggregationBucket, error) {
	var ready []*domain.AggregationBucket
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if len(k) > len(versionSuffix) && k[len(k)-len(versionSuffix):] == versionSuffix {
			continue
		}
		raw, err := s.redis.Get(ctx, k).Bytes()
		if err != nil {
			continue
		}
		var bj bucketJSON
		if err := json.Unmarshal(raw, &bj); err != nil {
			continue
		}
		if bj.Sent {
			continue
		}
		if now.UnixNano() < bj.DebounceUntil {
			continue
		}
		ready = append(ready, bj.toDomain(parseBucketKey(k), 0))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan aggregation buckets: %w", err)
	}
	return ready, nil
}

func parseBucketKey(redisKey string) domain.AggregationKey {
	raw := redisKey[len(keyPrefix):]
	// type:target[:object]
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			parts = append(parts, raw[start:i])
			start = i + 1
		}
	}
	parts = append(parts, raw[start:])

	k := domain.AggregationKey{}
	if len(parts) > 0 {
		k.Type = domain.EventType(parts[0])
	}
	if len(parts) > 1 {
		k.TargetUserID = parts[1]
	}
	if len(parts) > 2 {
		k.ObjectID = parts[2]
	}
	return k
}
