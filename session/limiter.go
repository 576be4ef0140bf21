package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/invauth/internal/sweep"
	"github.com/MrEthical07/invauth/revocation"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
	"go.uber.org/zap"
)

const (
	lockShards = 64

	DefaultSuspiciousWindow          = time.Hour
	DefaultSuspiciousIssuedThreshold = 5
	DefaultSuspiciousCheckInterval   = time.Minute
	DefaultSweepInterval             = 5 * time.Minute
)

// Suspicious signal reasons.
const (
	ReasonSessionsExceeded = "concurrent_sessions_exceeded"
	ReasonRapidIssuance    = "rapid_issuance"
)

// ErrStoreUnavailable is returned when credentials cannot be read or revoked.
var ErrStoreUnavailable = errors.New("session: store unavailable")

// Repository is the read side the limiter needs.
type Repository interface {
	ListActiveRefresh(ctx context.Context, userID int64, now time.Time) ([]store.RefreshCredential, error)
	DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error)
}

// SessionRevoker revokes one session and its credentials.
type SessionRevoker interface {
	RevokeSession(ctx context.Context, userID int64, sessionID string, reason revocation.Reason) (int, error)
}

type Config struct {
	SuspiciousWindow          time.Duration
	SuspiciousIssuedThreshold int
	SuspiciousCheckInterval   time.Duration
	SweepInterval             time.Duration
	Now                       func() time.Time
}

func (c *Config) applyDefaults() {
	if c.SuspiciousWindow <= 0 {
		c.SuspiciousWindow = DefaultSuspiciousWindow
	}
	if c.SuspiciousIssuedThreshold <= 0 {
		c.SuspiciousIssuedThreshold = DefaultSuspiciousIssuedThreshold
	}
	if c.SuspiciousCheckInterval <= 0 {
		c.SuspiciousCheckInterval = DefaultSuspiciousCheckInterval
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Status is the outcome of CheckLimit.
type Status struct {
	// Allowed reports whether another session fits without eviction.
	Allowed bool
	Current int
	Max     int
}

// Signal is the outcome of Suspicious. Checked is false when the per-user check
// interval had not elapsed and nothing was evaluated.
type Signal struct {
	Checked        bool
	Suspicious     bool
	Reasons        []string
	ActiveSessions int
	RecentIssued   int
}

type activity struct {
	issued    []time.Time
	lastCheck time.Time
}

type trackerShard struct {
	mu    sync.Mutex
	users map[int64]*activity
}

// Limiter is safe for concurrent use.
type Limiter struct {
	repo    Repository
	revoker SessionRevoker
	cfg     Config
	logger  *zap.Logger

	locks   [lockShards]sync.Mutex
	tracker [lockShards]trackerShard
	sweeper *sweep.Task
}

// NewLimiter builds a limiter.
func NewLimiter(repo Repository, revoker SessionRevoker, cfg Config, logger *zap.Logger) *Limiter {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		repo:    repo,
		revoker: revoker,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "session")),
	}
	for i := range l.tracker {
		l.tracker[i].users = make(map[int64]*activity)
	}
	l.sweeper = sweep.New("session", cfg.SweepInterval, l.Sweep, logger)
	return l
}

func shardOf(userID int64) int {
	return int(uint64(userID) % lockShards)
}

// CheckLimit reports the user's active session count against the role limit.
func (l *Limiter) CheckLimit(ctx context.Context, userID int64, r role.Role) (Status, error) {
	creds, err := l.repo.ListActiveRefresh(ctx, userID, l.cfg.Now())
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	current := len(orderSessions(creds))
	limit := role.LimitsFor(r).MaxSessions
	return Status{Allowed: current < limit, Current: current, Max: limit}, nil
}

// EvictExcess revokes the least recently refreshed sessions until the user is within
// the role limit and returns how many sessions were evicted.
func (l *Limiter) EvictExcess(ctx context.Context, userID int64, r role.Role) (int, error) {
	mu := &l.locks[shardOf(userID)]
	mu.Lock()
	defer mu.Unlock()

	creds, err := l.repo.ListActiveRefresh(ctx, userID, l.cfg.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sessions := orderSessions(creds)
	limit := role.LimitsFor(r).MaxSessions
	if len(sessions) <= limit {
		return 0, nil
	}

	excess := sessions[:len(sessions)-limit]
	for i, sid := range excess {
		if _, err := l.revoker.RevokeSession(ctx, userID, sid, revocation.ReasonSessionEvicted); err != nil {
			return i, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	l.logger.Info("sessions evicted",
		zap.Int64("user_id", userID),
		zap.String("role", r.String()),
		zap.Int("evicted", len(excess)),
		zap.Int("max", limit),
	)
	return len(excess), nil
}

// orderSessions returns distinct session ids ordered by the issue time of their most
// recent credential, oldest first. creds must be ordered by IssuedAt ascending.
func orderSessions(creds []store.RefreshCredential) []string {
	latest := make(map[string]time.Time, len(creds))
	for _, c := range creds {
		if t, ok := latest[c.SessionID]; !ok || c.IssuedAt.After(t) {
			latest[c.SessionID] = c.IssuedAt
		}
	}
	ids := make([]string, 0, len(latest))
	for sid := range latest {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := latest[ids[i]], latest[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})
	return ids
}

// Track records that a credential was issued to userID at the given time.
func (l *Limiter) Track(userID int64, at time.Time) {
	sh := &l.tracker[shardOf(userID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	a, ok := sh.users[userID]
	if !ok {
		a = &activity{}
		sh.users[userID] = a
	}
	a.issued = append(a.issued, at)
}

// Suspicious evaluates the advisory signal at most once per check interval per user.
func (l *Limiter) Suspicious(ctx context.Context, userID int64, r role.Role) (Signal, error) {
	now := l.cfg.Now()

	sh := &l.tracker[shardOf(userID)]
	sh.mu.Lock()
	a, ok := sh.users[userID]
	if !ok {
		a = &activity{}
		sh.users[userID] = a
	}
	if !a.lastCheck.IsZero() && now.Sub(a.lastCheck) < l.cfg.SuspiciousCheckInterval {
		sh.mu.Unlock()
		return Signal{}, nil
	}
	a.lastCheck = now
	a.issued = pruneBefore(a.issued, now.Add(-l.cfg.SuspiciousWindow))
	recent := len(a.issued)
	sh.mu.Unlock()

	status, err := l.CheckLimit(ctx, userID, r)
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{Checked: true, ActiveSessions: status.Current, RecentIssued: recent}
	if status.Current > status.Max {
		sig.Reasons = append(sig.Reasons, ReasonSessionsExceeded)
	}
	if recent > l.cfg.SuspiciousIssuedThreshold {
		sig.Reasons = append(sig.Reasons, ReasonRapidIssuance)
	}
	sig.Suspicious = len(sig.Reasons) > 0
	if sig.Suspicious {
		l.logger.Warn("suspicious session activity",
			zap.Int64("user_id", userID),
			zap.Strings("reasons", sig.Reasons),
			zap.Int("active_sessions", sig.ActiveSessions),
			zap.Int("recent_issued", sig.RecentIssued),
		)
	}
	return sig, nil
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// Sweep prunes the issuance tracker and deletes expired credentials. It returns the
// number of credentials deleted.
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	now := l.cfg.Now()
	cutoff := now.Add(-l.cfg.SuspiciousWindow)
	for i := range l.tracker {
		sh := &l.tracker[i]
		sh.mu.Lock()
		for id, a := range sh.users {
			a.issued = pruneBefore(a.issued, cutoff)
			if len(a.issued) == 0 && now.Sub(a.lastCheck) >= l.cfg.SuspiciousCheckInterval {
				delete(sh.users, id)
			}
		}
		sh.mu.Unlock()
	}

	n, err := l.repo.DeleteExpiredRefresh(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Tracked returns the number of users held in the issuance tracker.
func (l *Limiter) Tracked() int {
	n := 0
	for i := range l.tracker {
		sh := &l.tracker[i]
		sh.mu.Lock()
		n += len(sh.users)
		sh.mu.Unlock()
	}
	return n
}

// Start launches the periodic sweep.
func (l *Limiter) Start(ctx context.Context) { l.sweeper.Start(ctx) }

// Stop halts the sweep and waits for it.
func (l *Limiter) Stop() { l.sweeper.Stop() }
