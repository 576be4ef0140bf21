package rate

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	// Remaining is the number of further attempts admitted in the current window.
	Remaining int
	// ResetAt is when the current window ends.
	ResetAt time.Time
	// BlockedUntil is zero unless the key is blocked.
	BlockedUntil time.Time
}

// RetryAfter returns how long a rejected caller should wait.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	until := d.ResetAt
	if !d.BlockedUntil.IsZero() {
		until = d.BlockedUntil
	}
	if until.Before(now) {
		return 0
	}
	return until.Sub(now)
}

// Limiter is implemented by the memory and Redis backends.
type Limiter interface {
	// Check counts one attempt and reports whether it is admitted.
	Check(ctx context.Context, subject string, action Action, origin string) (Decision, error)
	// RecordSuccess clears the counter so a legitimate user is not penalized for
	// earlier failures.
	RecordSuccess(ctx context.Context, subject string, action Action, origin string) error
	Start(ctx context.Context)
	Stop()
}

// counterKey is action:len(subject):subject:origin. The length prefix keeps a ':'
// inside the subject or an IPv6 origin from colliding with another tuple.
func counterKey(action Action, subject, origin string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	var b strings.Builder
	b.Grow(len(action) + len(subject) + len(origin) + 8)
	b.WriteString(string(action))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(subject)))
	b.WriteByte(':')
	b.WriteString(subject)
	b.WriteByte(':')
	b.WriteString(origin)
	return b.String()
}
