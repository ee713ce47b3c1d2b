package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// memberActionWindow is the fixed window member self-service writes are counted in.
const memberActionWindow = time.Minute

// admitMemberActionScript admits one action while the member is under the limit.
// Refused attempts leave the counter alone so a throttled member is not pushed
// further out. Returns {admitted (1|0), remaining window in ms}.
var admitMemberActionScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
local admitted = 0
if used < limit then
  redis.call("INCR", KEYS[1])
  admitted = 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], window)
  ttl = window
end
return {admitted, ttl}
`)

// RedisMemberLimiter caps how many confirm and resubmit actions a member may take
// per minute. Counters live in Redis so every replica shares them.
type RedisMemberLimiter struct {
	client    redis.Scripter
	prefix    string
	perWindow int
}

func NewRedisMemberLimiter(client redis.Scripter, prefix string, perMinute int) *RedisMemberLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "treasury:rate_limit"
	}
	if perMinute <= 0 {
		perMinute = defaultMemberActionLimit
	}
	return &RedisMemberLimiter{client: client, prefix: prefix, perWindow: perMinute}
}

func (l *RedisMemberLimiter) key(action string, memberID uuid.UUID) string {
	return fmt.Sprintf("%s:member:%s:%s", l.prefix, memberID, action)
}

// Allow admits the action or returns a *RateLimitError carrying the seconds until the
// member's window resets. Any other error means Redis could not be consulted.
func (l *RedisMemberLimiter) Allow(ctx context.Context, action string, memberID uuid.UUID) error {
	if l == nil || l.client == nil {
		return nil
	}
	action = strings.TrimSpace(action)
	if action == "" || memberID == uuid.Nil {
		return nil
	}

	windowMs := memberActionWindow.Milliseconds()
	raw, err := admitMemberActionScript.Run(ctx, l.client, []string{l.key(action, memberID)}, l.perWindow, windowMs).Result()
	if err != nil {
		return fmt.Errorf("member limiter: %w", err)
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return fmt.Errorf("member limiter: unexpected reply %T", raw)
	}
	admitted, okAdmitted := values[0].(int64)
	ttlMs, okTTL := values[1].(int64)
	if !okAdmitted || !okTTL {
		return fmt.Errorf("member limiter: unexpected reply types %T, %T", values[0], values[1])
	}
	if admitted == 1 {
		return nil
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &RateLimitError{RetryAfterSeconds: retryAfter}
}
