// Package server owns the pulse server runtime.
//
// Ownership boundary:
// - transport listener and accept loop
// - per-connection read loop
// - server-side protocol dispatch
// - admin surface wiring
//
// Connection state and teardown belong to the registry; the server only
// drives them.
package server
