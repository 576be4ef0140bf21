// Package security builds the configuration posture report exposed by
// Engine.SecurityReport and printed by invauthd at startup.
//
// # What this package must NOT do
//
//   - Read configuration itself. Callers pass the effective values in.
//   - Include key material in a report.
package security
