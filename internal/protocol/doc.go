// Package protocol owns the pulse wire contract.
//
// Ownership boundary:
// - message type enumeration
// - line-delimited JSON message envelope
// - encode/decode primitives and size limits
//
// Liveness policy and connection lifecycle live outside this package.
package protocol
