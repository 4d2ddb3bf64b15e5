package liveness

import (
	"sync"
	"time"
)

// Hooks connect a monitor to the state it observes and the actions it triggers.
// All hooks must be safe for concurrent use; the monitor never mutates state.
type Hooks struct {
	// Alive reports the decorative liveness flag. It gates probe emission
	// only; the timeout check never consults it.
	Alive func() bool
	// Idle returns the silence duration since the last observed activity.
	Idle func() time.Duration
	// Probe emits one outbound keepalive on the connection's transport.
	Probe func()
	// Expire declares the connection dead after idle exceeded the timeout.
	// The monitor has already halted itself when Expire runs, so Expire may
	// re-enter Stop (directly or through registry teardown) without deadlock.
	Expire func(idle time.Duration)
}

// Monitor runs the two independent repeating actions for one connection.
type Monitor struct {
	cfg   Config
	hooks Hooks

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
}

// Start launches the probe and timeout tickers for one connection.
func Start(cfg Config, hooks Hooks) *Monitor {
	m := &Monitor{
		cfg:   cfg.WithDefaults(),
		hooks: hooks,
		stop:  make(chan struct{}),
	}
	go m.probeLoop()
	go m.timeoutLoop()
	return m
}

func (m *Monitor) probeLoop() {
	tk := time.NewTicker(m.cfg.KeepaliveInterval)
	defer tk.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-tk.C:
			m.fireProbe()
		}
	}
}

// fireProbe holds the monitor lock across the probe action so Stop, once
// returned, guarantees no further probe is in flight.
func (m *Monitor) fireProbe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.hooks.Alive != nil && !m.hooks.Alive() {
		return
	}
	if m.hooks.Probe != nil {
		m.hooks.Probe()
	}
}

func (m *Monitor) timeoutLoop() {
	tk := time.NewTicker(m.cfg.KeepaliveTimeout)
	defer tk.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-tk.C:
			idle := m.hooks.Idle()
			if idle <= m.cfg.KeepaliveTimeout {
				continue
			}
			// Halt before expiring: exactly one of a racing Stop and this
			// expiry wins, and the loser observes a no-op.
			if !m.halt() {
				return
			}
			if m.hooks.Expire != nil {
				m.hooks.Expire(idle)
			}
			return
		}
	}
}

// Stop cancels both timers. Idempotent and safe to call concurrently with an
// in-flight expiry; after Stop returns no probe or expiry will fire.
func (m *Monitor) Stop() {
	m.halt()
}

// Stopped reports whether the monitor has been canceled.
func (m *Monitor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Monitor) halt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	m.stopped = true
	close(m.stop)
	return true
}
