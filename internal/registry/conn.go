package registry

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/pulsectl/internal/liveness"
	"github.com/danmuck/pulsectl/internal/observability"
	"github.com/danmuck/pulsectl/internal/protocol"
)

// Conn is the mutable record for one registered connection. The record is
// reached only through the registry; its transport is owned exclusively by
// this record.
type Conn struct {
	id        string
	transport net.Conn
	openedAt  time.Time

	lastActivity atomic.Int64 // unix nanos
	alive        atomic.Bool

	monitor *liveness.Monitor

	wmu sync.Mutex
}

func newConn(id string, transport net.Conn) *Conn {
	c := &Conn{
		id:        id,
		transport: transport,
		openedAt:  time.Now(),
	}
	c.Touch()
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Transport() net.Conn {
	return c.transport
}

func (c *Conn) OpenedAt() time.Time {
	return c.openedAt
}

// Touch records inbound activity: timestamp now, liveness flag true.
// Called by the dispatcher before any per-type reaction.
func (c *Conn) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
	c.alive.Store(true)
}

func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Idle returns the silence duration since the last observed activity.
func (c *Conn) Idle() time.Duration {
	return time.Since(c.LastActivity())
}

// Alive reports the decorative liveness flag read by the probe action.
func (c *Conn) Alive() bool {
	return c.alive.Load()
}

// Send encodes and writes one message. Writes are serialized so the
// dispatcher and the probe timer never interleave partial lines.
func (c *Conn) Send(m protocol.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := protocol.WriteMessage(c.transport, m); err != nil {
		return err
	}
	observability.RecordMessage("out", string(m.Type))
	return nil
}

// CloseWrite half-closes the transport: the write direction ends while the
// peer may still finish sending.
func (c *Conn) CloseWrite() error {
	if tc, ok := c.transport.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := c.transport.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return c.transport.Close()
}
