// Package middleware adapts invauth.Engine to net/http.
//
// # Guards
//
//   - [Guard] validates the access token (cookie first, then bearer header) and puts
//     the identity into the request context.
//   - [RequireTenant] authorizes tenant-scoped routes for the guarded identity.
//   - [RequireRole] restricts a route to a set of roles.
//   - [RateLimit] counts one attempt of an action before the handler runs.
//   - [ClientIP] records the caller address used as rate-limit origin.
//
// Rejections are written by [WriteError] as JSON with a machine-readable reason.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself; every decision is delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Talk to the database or Redis.
//   - Leak error details beyond the reason code.
package middleware
