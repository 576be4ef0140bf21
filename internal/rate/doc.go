// Package rate implements fixed-window attempt counters with temporary blocking for
// security-sensitive actions such as login, password reset, registration and refresh.
//
// # Window semantics
//
// A counter is keyed by (action, subject, origin). The first attempt opens a window of
// Policy.Window. Once Policy.MaxAttempts attempts were admitted inside the window the
// next attempt blocks the key for Policy.BlockDuration. A blocked key rejects without
// counting, even if its window has elapsed.
//
// Two backends share these semantics:
//   - Memory: 64 mutex shards, default for a single process.
//   - Redis:  one Lua script per check, key prefix "rl:", for multi-process deployments.
//
// # What this package must NOT do
//
//   - Decide which subject or origin a request maps to (callers do).
//   - Be imported outside the invauth module.
package rate
