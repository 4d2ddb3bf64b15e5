package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/pulsectl/internal/liveness"
	"github.com/danmuck/pulsectl/internal/protocol"
	"github.com/danmuck/pulsectl/internal/testutil/testlog"
)

// fakeServer accepts one connection and answers like a pulse server.
type fakeServer struct {
	ln net.Listener

	mu       sync.Mutex
	received []protocol.Message
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeServer{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go f.serve()
	return f
}

func (f *fakeServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portRaw, err := net.SplitHostPort(f.ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func (f *fakeServer) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		msg, err := protocol.ReadMessage(reader)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()

		switch msg.Type {
		case protocol.TypePing:
			reply := protocol.New(protocol.TypePong)
			reply.ID = msg.ID
			_ = reply.SetPayload(protocol.NotePayload{Message: protocol.NotePong})
			_ = protocol.WriteMessage(conn, reply)
		case protocol.TypeKeepalive:
			reply := protocol.New(protocol.TypeKeepalive)
			reply.ID = msg.ID
			_ = reply.SetPayload(protocol.StatusPayload{Status: protocol.StatusAlive})
			_ = protocol.WriteMessage(conn, reply)
		case protocol.TypeData:
			reply := protocol.New(protocol.TypeData)
			reply.ID = msg.ID
			reply.Payload = msg.Payload
			_ = protocol.WriteMessage(conn, reply)
		case protocol.TypeClose:
			_ = protocol.WriteMessage(conn, protocol.New(protocol.TypeClose))
			return
		}
	}
}

func (f *fakeServer) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, len(f.received))
	copy(out, f.received)
	return out
}

func testConfig(t *testing.T, f *fakeServer) Config {
	cfg := DefaultConfig()
	cfg.Host, cfg.Port = f.hostPort(t)
	cfg.Liveness = liveness.Config{
		KeepaliveInterval: time.Minute,
		KeepaliveTimeout:  time.Minute,
	}
	cfg.Backoff.Jitter = false
	cfg.MaxConnectAttempts = 3
	return cfg
}

func TestNewRequiresAddress(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestPingRecordsAcknowledgement(t *testing.T) {
	testlog.Start(t)
	f := newFakeServer(t)
	c, err := New(testConfig(t, f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = c.Disconnect() }()

	id, err := c.Ping("p1")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if id != "p1" {
		t.Fatalf("explicit id replaced: %s", id)
	}

	waitFor(t, func() bool { return c.Acks().PongCount == 1 })
	if acks := c.Acks(); acks.LastPongID != "p1" {
		t.Fatalf("unexpected ack record: %+v", acks)
	}
}

func TestSendDataGeneratesCorrelationID(t *testing.T) {
	testlog.Start(t)
	f := newFakeServer(t)
	received := make(chan protocol.Message, 1)
	cfg := testConfig(t, f)
	cfg.OnData = func(msg protocol.Message) { received <- msg }
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = c.Disconnect() }()

	id, err := c.SendData(map[string]int{"x": 1}, "")
	if err != nil {
		t.Fatalf("send data: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated correlation id")
	}

	select {
	case msg := <-received:
		if msg.ID != id {
			t.Fatalf("echo id mismatch: want=%s got=%s", id, msg.ID)
		}
		var body map[string]int
		if err := json.Unmarshal(msg.Payload, &body); err != nil || body["x"] != 1 {
			t.Fatalf("echo payload mismatch: %s err=%v", msg.Payload, err)
		}
	case <-time.After(time.Second):
		t.Fatalf("data echo never surfaced to handler")
	}
}

func TestDisconnectSendsCloseFirst(t *testing.T) {
	testlog.Start(t)
	f := newFakeServer(t)
	c, err := New(testConfig(t, f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if c.Connected() {
		t.Fatalf("client should be disconnected")
	}

	waitFor(t, func() bool {
		msgs := f.messages()
		return len(msgs) > 0 && msgs[len(msgs)-1].Type == protocol.TypeClose
	})

	// Idempotent.
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}

func TestServerCloseTriggersLocalDisconnect(t *testing.T) {
	testlog.Start(t)
	f := newFakeServer(t)
	c, err := New(testConfig(t, f))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// A close message from the peer starts the local disconnect sequence.
	if _, err := c.SendData(nil, "trigger"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.writeMessage(protocol.New(protocol.TypeClose)); err != nil {
		t.Fatalf("write close: %v", err)
	}
	waitFor(t, func() bool { return !c.Connected() })
}

func TestClientProbesPeriodically(t *testing.T) {
	testlog.Start(t)
	f := newFakeServer(t)
	cfg := testConfig(t, f)
	cfg.Liveness.KeepaliveInterval = 20 * time.Millisecond
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = c.Disconnect() }()

	waitFor(t, func() bool {
		for _, msg := range f.messages() {
			if msg.Type == protocol.TypeKeepalive {
				return true
			}
		}
		return false
	})
	// Probe acks are recorded as keepalive receipts.
	waitFor(t, func() bool { return c.Acks().KeepaliveAckCount > 0 })
}

func TestInactivityTimeoutClosesClientConnection(t *testing.T) {
	testlog.Start(t)
	// A listener that accepts and then stays silent.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 1024)
				for {
					if _, err := conn.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	host, portRaw, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portRaw)
	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Liveness = liveness.Config{
		KeepaliveInterval: time.Minute,
		KeepaliveTimeout:  40 * time.Millisecond,
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, func() bool { return !c.Connected() })
}

func TestConnectFailsAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1 // nothing listens here
	cfg.MaxConnectAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: 5 * time.Millisecond, Multiplier: 1.0}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial failure")
	}
	if c.Connected() {
		t.Fatalf("client should not report connected")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never satisfied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
