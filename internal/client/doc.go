// Package client owns the single-connection pulse client.
//
// Ownership boundary:
// - dial with retry/backoff
// - client-side protocol dispatch
// - the client's one liveness monitor
// - disconnect sequence (close message, then stream end)
//
// The client surfaces data payloads to the application layer and records
// acknowledgements; it never replies as a role.
package client
