// Package state is the Aggregation State Store: it persists each
// AggregationBucket in Redis and mutates it atomically via Lua scripts, so
// concurrent folds of the same key (from separate aggregator processes,
// which the in-process sharded mutex does not serialize) can never
// interleave a read-modify-write.
package state

import "github.com/redis/go-redis/v9"

// foldEventScript loads the bucket JSON at KEYS[1] (or creates an empty one,
// also replacing a sent bucket whose last event is more than one window old),
// appends the actor if not already tracked (capped at ARGV[3] = MaxTrackedActors),
// appends the event id to the uncapped event_ids list, increments the total
// count, extends the debounce deadline unless the bucket already sent this
// cycle, and writes the bucket back, bumping the version key at KEYS[2].
//
// ARGV: 1=actor_id 2=now_unix_nano 3=max_tracked_actors 4=window_nanos 5=event_id
const foldEventScript = `
	local bucket_key = KEYS[1]
	local version_key = KEYS[2]
	local actor_id = ARGV[1]
	local now = tonumber(ARGV[2])
	local max_actors = tonumber(ARGV[3])
	local window_nanos = tonumber(ARGV[4])
	local event_id = ARGV[5]

	local raw = redis.call('GET', bucket_key)
	local bucket
	if raw then
		bucket = cjson.decode(raw)
		if bucket.sent and window_nanos > 0 and now - bucket.last_event_at > window_nanos then
			bucket = nil
		end
	end
	if not bucket then
		bucket = {
			actor_ids = {},
			event_ids = {},
			count = 0,
			first_event_at = now,
			sent = false,
			debounce_until = now
		}
	end
	if bucket.event_ids == nil then
		bucket.event_ids = {}
	end

	bucket.count = bucket.count + 1
	bucket.last_event_at = now
	table.insert(bucket.event_ids, event_id)

	local already_tracked = false
	for _, a in ipairs(bucket.actor_ids) do
		if a == actor_id then
			already_tracked = true
			break
		end
	end
	if not already_tracked and #bucket.actor_ids < max_actors then
		table.insert(bucket.actor_ids, actor_id)
	end

	if not bucket.sent then
		if window_nanos <= 0 then
			bucket.debounce_until = now
		else
			bucket.debounce_until = now + window_nanos
		end
	end

	redis.call('SET', bucket_key, cjson.encode(bucket))
	return redis.call('INCR', version_key)
`

// markSentScript marks KEYS[1]'s bucket Sent=true, so the same cycle's
// already-delivered bucket will not re-trigger a send when later events
// fold into it; once a full window passes with no new event, the next fold
// starts a fresh bucket.
const markSentScript = `
	local bucket_key = KEYS[1]
	local version_key = KEYS[2]

	local raw = redis.call('GET', bucket_key)
	if not raw then
		return 0
	end

	local bucket = cjson.decode(raw)
	bucket.sent = true
	redis.call('SET', bucket_key, cjson.encode(bucket))
	return redis.call('INCR', version_key)
`

func newLuaScripts() (fold, markSent *redis.Script) {
	return redis.NewScript(foldEventScript), redis.NewScript(markSentScript)
}
