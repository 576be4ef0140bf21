// Package store defines the persistent data model owned by the security core and the
// repository ports the components depend on.
//
// # Architecture boundaries
//
// Implementations live in store/memory (process-local, used by tests and the dev
// server) and store/postgres (pgx, durable). Components import only this package, so
// the backing store is chosen once at wiring time.
//
// Repository methods are the only suspension points of the core. Implementations must
// bound every call with a timeout and report any failure other than "row absent" as
// [ErrUnavailable] so callers can fail closed.
//
// # What this package must NOT do
//
//   - Make security decisions (revoked/expired checks belong to the components).
//   - Import invauth or any component package.
package store
