package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "rl:"

// checkScript applies the memory backend's algorithm atomically on a hash
// {a: attempts, ws: window start ms, bu: blocked until ms}.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local block = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local h = redis.call('HMGET', key, 'a', 'ws', 'bu')
local attempts = tonumber(h[1]) or 0
local ws = tonumber(h[2]) or now
local bu = tonumber(h[3]) or 0

if bu > now then
  return {0, 0, ws + window, bu}
end
if bu > 0 then
  attempts = 0
  ws = now
elseif now - ws > window then
  attempts = 0
  ws = now
end

if attempts >= max then
  bu = now + block
  redis.call('HSET', key, 'a', attempts, 'ws', ws, 'bu', bu)
  redis.call('PEXPIRE', key, ttl)
  return {0, 0, ws + window, bu}
end

attempts = attempts + 1
redis.call('HSET', key, 'a', attempts, 'ws', ws, 'bu', 0)
redis.call('PEXPIRE', key, ttl)
return {1, max - attempts, ws + window, 0}
`)

// RedisConfig configures the shared backend.
type RedisConfig struct {
	Policies Policies
	Now      func() time.Time
}

// RedisLimiter shares counters between processes. Keys expire on their own, so it
// has no sweep.
type RedisLimiter struct {
	redis    redis.UniversalClient
	policies Policies
	now      func() time.Time
	logger   *zap.Logger
}

// NewRedis builds a limiter over client. A nil policy table uses DefaultPolicies.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("rate: redis client is nil")
	}
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies()
	}
	if err := cfg.Policies.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		redis:    client,
		policies: cfg.Policies,
		now:      cfg.Now,
		logger:   logger.With(zap.String("component", "rate.redis")),
	}, nil
}

// Check counts one attempt.
func (l *RedisLimiter) Check(ctx context.Context, subject string, action Action, origin string) (Decision, error) {
	p, err := l.policies.lookup(action)
	if err != nil {
		return Decision{}, err
	}

	ttl := p.Window
	if p.BlockDuration > ttl {
		ttl = p.BlockDuration
	}
	now := l.now()

	res, err := checkScript.Run(ctx, l.redis,
		[]string{redisKeyPrefix + counterKey(action, subject, origin)},
		now.UnixMilli(), p.MaxAttempts, p.Window.Milliseconds(), p.BlockDuration.Milliseconds(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		l.logger.Error("rate limit check failed", zap.String("action", string(action)), zap.Error(err))
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply of length %d", ErrStoreUnavailable, len(res))
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}
	if res[3] > 0 {
		d.BlockedUntil = time.UnixMilli(res[3])
	}
	return d, nil
}

// RecordSuccess deletes the counter for the key.
func (l *RedisLimiter) RecordSuccess(ctx context.Context, subject string, action Action, origin string) error {
	if _, err := l.policies.lookup(action); err != nil {
		return err
	}
	if err := l.redis.Del(ctx, redisKeyPrefix+counterKey(action, subject, origin)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) Start(context.Context) {}

func (l *RedisLimiter) Stop() {}
