package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/pulsectl/internal/admin"
	"github.com/danmuck/pulsectl/internal/liveness"
	"github.com/danmuck/pulsectl/internal/observability"
	"github.com/danmuck/pulsectl/internal/protocol"
	"github.com/danmuck/pulsectl/internal/registry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ServiceConfig holds constructor-time server settings; none are reloadable.
type ServiceConfig struct {
	Port            int
	AdminListenAddr string
	CorsOrigins     []string
	Liveness        liveness.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Port:     7600,
		Liveness: liveness.Config{}.WithDefaults(),
	}
}

// Service is the pulse server runtime: listener, registry, admin surface.
type Service struct {
	cfg      ServiceConfig
	registry *registry.Registry
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	if cfg.Port <= 0 {
		cfg.Port = DefaultServiceConfig().Port
	}
	cfg.Liveness = cfg.Liveness.WithDefaults()
	svc := &Service{cfg: cfg}
	svc.registry = registry.New(cfg.Liveness, svc.probe)
	return svc
}

// Registry exposes the connection registry for introspection.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Run blocks until signal shutdown, serving sessions and, when configured,
// the admin surface.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: listen port=%d: %w", s.cfg.Port, err)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("server_listening")

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		adm := admin.New("pulsed", addr, s.registry, s.cfg.CorsOrigins)
		go func() {
			adminErr <- adm.Serve()
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

// Serve accepts sessions on an existing listener until ctx is canceled.
// On return every registered connection has been torn down.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	defer s.registry.ShutdownAll()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn registers the connection and drives its read loop. The
// identifier is derived from the remote address and port, unique among
// currently-open connections.
func (s *Service) handleConn(conn net.Conn) {
	id := conn.RemoteAddr().String()
	state, err := s.registry.Register(id, conn)
	if err != nil {
		log.Error().Str("conn_id", id).Err(err).Msg("register_failed")
		_ = conn.Close()
		return
	}
	s.readLoop(state)
}

// readLoop processes inbound messages in arrival order for one connection.
// A malformed line is recoverable; stream end or stream error tears the
// connection down and affects no other entry.
func (s *Service) readLoop(c *registry.Conn) {
	reader := bufio.NewReader(c.Transport())
	for {
		msg, err := protocol.ReadMessage(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedLine) {
				observability.RecordMalformedLine()
				log.Warn().Str("conn_id", c.ID()).Err(err).Msg("malformed_message")
				s.replyInvalidFormat(c)
				continue
			}
			reason := observability.ReasonStreamEnd
			if !errors.Is(err, net.ErrClosed) && !isStreamEnd(err) {
				reason = observability.ReasonStreamErr
				log.Warn().Str("conn_id", c.ID()).Err(err).Msg("stream_error")
			}
			s.registry.Teardown(c.ID(), reason)
			return
		}
		s.dispatch(c, msg)
	}
}

func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// probe emits one unsolicited keepalive heartbeat; it is best-effort and not
// itself a liveness proof for the receiver.
func (s *Service) probe(c *registry.Conn) {
	msg := protocol.New(protocol.TypeKeepalive)
	msg.ID = uuid.NewString()
	if err := c.Send(msg); err != nil {
		log.Warn().Str("conn_id", c.ID()).Err(err).Msg("probe_write_failed")
	}
}
