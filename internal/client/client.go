package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/pulsectl/internal/liveness"
	"github.com/danmuck/pulsectl/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: server address required")
	ErrNotConnected    = errors.New("client: not connected")
	ErrAlreadyActive   = errors.New("client: connection already active")
)

// DataHandler receives inbound data payloads surfaced to the application layer.
type DataHandler func(msg protocol.Message)

// Config holds constructor-time client settings; none are reloadable.
type Config struct {
	Host string
	Port int

	Liveness           liveness.Config
	Backoff            BackoffConfig
	ConnectTimeout     time.Duration
	MaxConnectAttempts int

	OnData DataHandler
}

func DefaultConfig() Config {
	return Config{
		Liveness:       liveness.Config{}.WithDefaults(),
		Backoff:        DefaultBackoff(),
		ConnectTimeout: 5 * time.Second,
	}
}

// AckRecord remembers the most recent acknowledgement of each kind.
type AckRecord struct {
	PongCount         uint64
	LastPongID        string
	LastPongAt        time.Time
	KeepaliveAckCount uint64
	LastKeepaliveAt   time.Time
}

// Client maintains the single pulse connection for this process.
type Client struct {
	cfg Config
	rng *rand.Rand

	mu      sync.Mutex
	conn    net.Conn
	monitor *liveness.Monitor
	closing bool

	lastActivity atomic.Int64
	alive        atomic.Bool

	ackMu sync.Mutex
	acks  AckRecord
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, ErrAddressRequired
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	cfg.Liveness = cfg.Liveness.WithDefaults()
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *Client) address() string {
	return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
}

// Connect dials the server, retrying with backoff, then starts the read loop
// and the client's liveness monitor.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrAlreadyActive
	}
	c.conn = conn
	c.closing = false
	c.touch()
	c.monitor = liveness.Start(c.cfg.Liveness, liveness.Hooks{
		Alive: c.alive.Load,
		Idle:  c.idle,
		Probe: c.probe,
		Expire: func(idle time.Duration) {
			log.Warn().
				Dur("idle", idle).
				Dur("timeout", c.cfg.Liveness.KeepaliveTimeout).
				Msg("server_timed_out")
			c.teardown()
		},
	})
	c.mu.Unlock()

	go c.readLoop(conn)
	log.Info().Str("addr", c.address()).Msg("client_connected")
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	var attempt int
	for {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", c.address())
		if err == nil {
			return conn, nil
		}
		log.Warn().
			Int("attempt", attempt).
			Str("addr", c.address()).
			Err(err).
			Msg("dial_failed")
		if !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Disconnect sends a close message, then ends the stream and cancels the
// liveness monitor. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	closing := c.closing
	c.closing = true
	c.mu.Unlock()
	if conn == nil || closing {
		return nil
	}
	if err := c.writeMessage(protocol.New(protocol.TypeClose)); err != nil {
		log.Warn().Err(err).Msg("close_write_failed")
	}
	c.teardown()
	return nil
}

// Connected reports whether the single connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Acks returns a copy of the acknowledgement record.
func (c *Client) Acks() AckRecord {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	return c.acks
}

// SendData sends one data message with an opaque payload. An empty id is
// replaced with a generated correlation id, which is returned.
func (c *Client) SendData(payload any, id string) (string, error) {
	msg := protocol.New(protocol.TypeData)
	if id == "" {
		id = uuid.NewString()
	}
	msg.ID = id
	if payload != nil {
		if err := msg.SetPayload(payload); err != nil {
			return "", err
		}
	}
	return id, c.writeMessage(msg)
}

// Keepalive sends one explicit heartbeat outside the scheduled probes; the
// server acknowledges it with a keepalive status message.
func (c *Client) Keepalive(id string) (string, error) {
	msg := protocol.New(protocol.TypeKeepalive)
	if id == "" {
		id = uuid.NewString()
	}
	msg.ID = id
	return id, c.writeMessage(msg)
}

// Ping sends one ping; the server answers with a pong carrying the same id.
func (c *Client) Ping(id string) (string, error) {
	msg := protocol.New(protocol.TypePing)
	if id == "" {
		id = uuid.NewString()
	}
	msg.ID = id
	return id, c.writeMessage(msg)
}

func (c *Client) writeMessage(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return protocol.WriteMessage(c.conn, msg)
}

// probe emits the client-side heartbeat; the server acknowledges it with a
// keepalive status message.
func (c *Client) probe() {
	msg := protocol.New(protocol.TypeKeepalive)
	msg.ID = uuid.NewString()
	if err := c.writeMessage(msg); err != nil {
		log.Warn().Err(err).Msg("probe_write_failed")
	}
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
	c.alive.Store(true)
}

func (c *Client) idle() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// teardown closes the single connection exactly once: monitor first, then
// the transport.
func (c *Client) teardown() {
	c.mu.Lock()
	conn := c.conn
	monitor := c.monitor
	c.conn = nil
	c.monitor = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.alive.Store(false)
	if monitor != nil {
		monitor.Stop()
	}
	_ = conn.Close()
	log.Info().Str("addr", c.address()).Msg("client_disconnected")
}

func (c *Client) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		msg, err := protocol.ReadMessage(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedLine) {
				// Recoverable: log and keep reading; the client never replies.
				log.Warn().Err(err).Msg("malformed_message")
				continue
			}
			c.teardown()
			return
		}
		c.dispatch(msg)
	}
}

// dispatch executes the client-side reaction for one inbound message; the
// activity update runs first for every message.
func (c *Client) dispatch(msg protocol.Message) {
	c.touch()

	switch msg.Type {
	case protocol.TypeData:
		if c.cfg.OnData != nil {
			c.cfg.OnData(msg)
			return
		}
		log.Info().
			Str("id", msg.ID).
			RawJSON("payload", payloadOrNull(msg)).
			Msg("data_received")

	case protocol.TypePong:
		c.ackMu.Lock()
		c.acks.PongCount++
		c.acks.LastPongID = msg.ID
		c.acks.LastPongAt = time.Now()
		c.ackMu.Unlock()

	case protocol.TypeKeepalive:
		c.ackMu.Lock()
		c.acks.KeepaliveAckCount++
		c.acks.LastKeepaliveAt = time.Now()
		c.ackMu.Unlock()

	case protocol.TypeClose:
		log.Info().Msg("server_requested_close")
		c.teardown()

	default:
		log.Warn().Str("type", string(msg.Type)).Msg("unhandled_message_type")
	}
}

func payloadOrNull(msg protocol.Message) []byte {
	if len(msg.Payload) == 0 {
		return []byte("null")
	}
	return msg.Payload
}
