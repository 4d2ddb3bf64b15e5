// Package registry owns server-side connection state.
//
// Ownership boundary:
// - connection record arena keyed by identifier
// - liveness monitor creation and cancellation per record
// - idempotent teardown (timers, then transport, then entry)
//
// Message semantics live in the server dispatcher; the registry never
// inspects protocol traffic beyond emitting probes through its hook.
package registry
