package rate

import (
	"context"
	"hash/maphash"
	"sync"
	"time"

	"github.com/MrEthical07/invauth/internal/sweep"
	"go.uber.org/zap"
)

const (
	shardCount = 64
	// DefaultSweepInterval is how often idle counters are dropped.
	DefaultSweepInterval = 5 * time.Minute
)

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	Policies      Policies
	SweepInterval time.Duration
	Now           func() time.Time
}

type counter struct {
	attempts     int
	windowStart  time.Time
	blockedUntil time.Time
	lastAttempt  time.Time
	window       time.Duration
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// Memory is the in-process limiter. Counters are lost on restart.
type Memory struct {
	policies Policies
	now      func() time.Time
	seed     maphash.Seed
	shards   [shardCount]shard
	sweeper  *sweep.Task
}

// NewMemory builds an in-process limiter. A nil policy table uses DefaultPolicies.
func NewMemory(cfg MemoryConfig, logger *zap.Logger) (*Memory, error) {
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies()
	}
	if err := cfg.Policies.Validate(); err != nil {
		return nil, err
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Memory{
		policies: cfg.Policies,
		now:      cfg.Now,
		seed:     maphash.MakeSeed(),
	}
	for i := range m.shards {
		m.shards[i].counters = make(map[string]*counter)
	}
	m.sweeper = sweep.New("rate.counters", cfg.SweepInterval, m.sweep, logger)
	return m, nil
}

func (m *Memory) shardFor(key string) *shard {
	return &m.shards[maphash.String(m.seed, key)%shardCount]
}

// Check counts one attempt.
func (m *Memory) Check(ctx context.Context, subject string, action Action, origin string) (Decision, error) {
	p, err := m.policies.lookup(action)
	if err != nil {
		return Decision{}, err
	}
	key := counterKey(action, subject, origin)
	s := m.shardFor(key)
	now := m.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &counter{windowStart: now, window: p.Window}
		s.counters[key] = c
	}

	if now.Before(c.blockedUntil) {
		return Decision{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      c.windowStart.Add(p.Window),
			BlockedUntil: c.blockedUntil,
		}, nil
	}

	switch {
	case !c.blockedUntil.IsZero():
		*c = counter{windowStart: now, window: p.Window}
	case now.Sub(c.windowStart) > p.Window:
		c.attempts = 0
		c.windowStart = now
	}
	c.lastAttempt = now

	if c.attempts >= p.MaxAttempts {
		c.blockedUntil = now.Add(p.BlockDuration)
		return Decision{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      c.windowStart.Add(p.Window),
			BlockedUntil: c.blockedUntil,
		}, nil
	}

	c.attempts++
	return Decision{
		Allowed:   true,
		Remaining: p.MaxAttempts - c.attempts,
		ResetAt:   c.windowStart.Add(p.Window),
	}, nil
}

// RecordSuccess drops the counter for the key.
func (m *Memory) RecordSuccess(ctx context.Context, subject string, action Action, origin string) error {
	if _, err := m.policies.lookup(action); err != nil {
		return err
	}
	key := counterKey(action, subject, origin)
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.counters, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live counters.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.counters)
		s.mu.Unlock()
	}
	return n
}

// Start launches the periodic counter sweep.
func (m *Memory) Start(ctx context.Context) { m.sweeper.Start(ctx) }

// Stop halts the sweep and waits for it.
func (m *Memory) Stop() { m.sweeper.Stop() }

// Sweep removes idle, unblocked counters once.
func (m *Memory) Sweep(ctx context.Context) (int64, error) { return m.sweep(ctx) }

func (m *Memory) sweep(ctx context.Context) (int64, error) {
	now := m.now()
	var removed int64
	for i := range m.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s := &m.shards[i]
		s.mu.Lock()
		for key, c := range s.counters {
			if now.Before(c.blockedUntil) {
				continue
			}
			if now.Sub(c.lastAttempt) > c.window {
				delete(s.counters, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}
