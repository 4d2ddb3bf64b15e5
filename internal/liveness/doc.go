// Package liveness owns per-connection keepalive scheduling.
//
// Ownership boundary:
// - probe ticker (keepalive interval)
// - inactivity-timeout ticker (keepalive timeout)
// - race-safe cancellation of both
//
// The monitor reads connection state through hooks and never mutates it;
// activity bookkeeping belongs to the dispatcher.
package liveness
