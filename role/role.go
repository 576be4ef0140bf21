package role

import (
	"errors"
	"strings"
	"time"
)

// ErrNotAllowed is returned when a role name is not one of the known roles.
var ErrNotAllowed = errors.New("role: not allowed")

// Role is a closed enumeration of account roles.
type Role uint8

const (
	// Unknown is the zero value and never valid in a token.
	Unknown Role = iota
	SuperAdmin
	Admin
	Manager
	Operator
	Viewer

	roleCount
)

var names = [roleCount]string{
	Unknown:    "",
	SuperAdmin: "superadmin",
	Admin:      "admin",
	Manager:    "manager",
	Operator:   "operator",
	Viewer:     "viewer",
}

// Limits captures the per-role session and token policy.
type Limits struct {
	// MaxSessions is the number of concurrently active sessions per account.
	MaxSessions int
	// AccessTTL bounds the lifetime of access tokens minted for the role.
	AccessTTL time.Duration
	// IdleTimeout is how long a refresh credential is honored after issuance.
	IdleTimeout time.Duration
}

// Single-session policy for every role. Only the time windows differ.
var limits = [roleCount]Limits{
	Unknown:    {MaxSessions: 1, AccessTTL: 5 * time.Minute, IdleTimeout: 30 * time.Minute},
	SuperAdmin: {MaxSessions: 1, AccessTTL: 15 * time.Minute, IdleTimeout: 12 * time.Hour},
	Admin:      {MaxSessions: 1, AccessTTL: 30 * time.Minute, IdleTimeout: 8 * time.Hour},
	Manager:    {MaxSessions: 1, AccessTTL: 30 * time.Minute, IdleTimeout: 8 * time.Hour},
	Operator:   {MaxSessions: 1, AccessTTL: time.Hour, IdleTimeout: 4 * time.Hour},
	Viewer:     {MaxSessions: 1, AccessTTL: time.Hour, IdleTimeout: 2 * time.Hour},
}

// Parse maps a wire value to a Role. Matching is exact after trimming spaces.
func Parse(value string) (Role, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Unknown, false
	}
	for r := SuperAdmin; r < roleCount; r++ {
		if names[r] == value {
			return r, true
		}
	}
	return Unknown, false
}

// String returns the wire value of r.
func (r Role) String() string {
	if r >= roleCount {
		return ""
	}
	return names[r]
}

// Valid reports whether r is one of the allowed roles.
func (r Role) Valid() bool {
	return r > Unknown && r < roleCount
}

// Elevated reports whether r may run tenant-wide administrative operations.
func (r Role) Elevated() bool {
	return r == SuperAdmin || r == Admin
}

// LimitsFor returns the policy row for r. Unknown roles get the most restrictive row.
func LimitsFor(r Role) Limits {
	if !r.Valid() {
		return limits[Unknown]
	}
	return limits[r]
}

// All returns every valid role in declaration order.
func All() []Role {
	out := make([]Role, 0, roleCount-1)
	for r := SuperAdmin; r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}
