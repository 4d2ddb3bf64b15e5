package registry

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/pulsectl/internal/liveness"
	"github.com/danmuck/pulsectl/internal/observability"
	"github.com/rs/zerolog/log"
)

var ErrDuplicateIdentifier = errors.New("registry: duplicate connection identifier")

// ProbeFunc emits one keepalive probe on a registered connection.
type ProbeFunc func(*Conn)

// Snapshot is a read-only view of one registered connection.
type Snapshot struct {
	ID           string    `json:"id"`
	OpenedAt     time.Time `json:"opened_at"`
	LastActivity time.Time `json:"last_activity"`
	IdleMS       int64     `json:"idle_ms"`
	Alive        bool      `json:"alive"`
}

// Registry maps connection identifiers to live connection records and owns
// the lifecycle of each record's liveness monitor. A single mutex serializes
// register/lookup/teardown; connections are otherwise independent.
type Registry struct {
	cfg   liveness.Config
	probe ProbeFunc

	mu    sync.Mutex
	conns map[string]*Conn
}

func New(cfg liveness.Config, probe ProbeFunc) *Registry {
	return &Registry{
		cfg:   cfg.WithDefaults(),
		probe: probe,
		conns: make(map[string]*Conn),
	}
}

// Register creates the record with fresh activity state and starts its
// liveness monitor before any data is read from the transport.
func (r *Registry) Register(id string, transport net.Conn) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateIdentifier, id)
	}

	conn := newConn(id, transport)
	conn.monitor = liveness.Start(r.cfg, liveness.Hooks{
		Alive: conn.Alive,
		Idle:  conn.Idle,
		Probe: func() {
			if r.probe != nil {
				r.probe(conn)
			}
		},
		Expire: func(idle time.Duration) {
			log.Warn().
				Str("conn_id", id).
				Dur("idle", idle).
				Dur("timeout", r.cfg.KeepaliveTimeout).
				Msg("connection_timed_out")
			r.teardown(id, observability.ReasonTimeout)
		},
	})
	r.conns[id] = conn

	observability.RecordConnectionOpened()
	log.Info().Str("conn_id", id).Msg("connection_registered")
	return conn, nil
}

// Lookup returns the record for id, if still registered.
func (r *Registry) Lookup(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Teardown removes id from the registry, cancels both of its timers, and
// closes its transport. Idempotent: concurrent callers for the same id race
// on the map entry and exactly one performs the cleanup.
func (r *Registry) Teardown(id string, reason string) bool {
	return r.teardown(id, reason)
}

func (r *Registry) teardown(id string, reason string) bool {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, id)
	r.mu.Unlock()

	conn.alive.Store(false)
	conn.monitor.Stop()
	_ = conn.transport.Close()

	observability.RecordConnectionClosed(reason)
	log.Info().Str("conn_id", id).Str("reason", reason).Msg("connection_torn_down")
	return true
}

// ShutdownAll tears down every registered connection; used at process stop.
func (r *Registry) ShutdownAll() {
	for _, id := range r.Identifiers() {
		r.teardown(id, observability.ReasonShutdown)
	}
}

// Count reports the number of currently registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Identifiers returns a sorted list of registered connection identifiers.
func (r *Registry) Identifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshots returns a sorted, read-only view of every registered connection.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, Snapshot{
			ID:           conn.id,
			OpenedAt:     conn.openedAt,
			LastActivity: conn.LastActivity(),
			IdleMS:       conn.Idle().Milliseconds(),
			Alive:        conn.Alive(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
