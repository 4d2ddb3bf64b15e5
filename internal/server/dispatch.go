package server

import (
	"github.com/danmuck/pulsectl/internal/observability"
	"github.com/danmuck/pulsectl/internal/protocol"
	"github.com/danmuck/pulsectl/internal/registry"
	"github.com/rs/zerolog/log"
)

// dispatch executes the per-type reaction for one inbound message. The
// activity update runs first for every message: any inbound traffic resets
// the timeout clock, not just keepalives.
func (s *Service) dispatch(c *registry.Conn, msg protocol.Message) {
	c.Touch()
	observability.RecordMessage("in", string(msg.Type))

	switch msg.Type {
	case protocol.TypeData:
		reply := protocol.New(protocol.TypeData)
		reply.ID = msg.ID
		reply.Payload = msg.Payload
		s.send(c, reply)

	case protocol.TypePing:
		reply := protocol.New(protocol.TypePong)
		reply.ID = msg.ID
		if err := reply.SetPayload(protocol.NotePayload{Message: protocol.NotePong}); err != nil {
			log.Error().Str("conn_id", c.ID()).Err(err).Msg("encode_pong_failed")
			return
		}
		s.send(c, reply)

	case protocol.TypeKeepalive:
		reply := protocol.New(protocol.TypeKeepalive)
		reply.ID = msg.ID
		if err := reply.SetPayload(protocol.StatusPayload{Status: protocol.StatusAlive}); err != nil {
			log.Error().Str("conn_id", c.ID()).Err(err).Msg("encode_keepalive_ack_failed")
			return
		}
		s.send(c, reply)

	case protocol.TypeClose:
		reply := protocol.New(protocol.TypeClose)
		s.send(c, reply)
		if err := c.CloseWrite(); err != nil {
			log.Warn().Str("conn_id", c.ID()).Err(err).Msg("half_close_failed")
		}

	default:
		// Covers types this side never receives (pong) and unrecognized tags.
		log.Warn().
			Str("conn_id", c.ID()).
			Str("type", string(msg.Type)).
			Msg("unhandled_message_type")
	}
}

// send is fire-and-forget relative to the rest of the system; a write
// failure is a stream error and tears this connection down only.
func (s *Service) send(c *registry.Conn, msg protocol.Message) {
	if err := c.Send(msg); err != nil {
		log.Warn().Str("conn_id", c.ID()).Err(err).Msg("write_failed")
		s.registry.Teardown(c.ID(), observability.ReasonStreamErr)
	}
}

// replyInvalidFormat answers one malformed inbound line with exactly one
// error-payload data message; the connection stays open.
func (s *Service) replyInvalidFormat(c *registry.Conn) {
	reply := protocol.New(protocol.TypeData)
	if err := reply.SetPayload(protocol.ErrorPayload{Error: protocol.ErrInvalidFormatText}); err != nil {
		log.Error().Str("conn_id", c.ID()).Err(err).Msg("encode_error_reply_failed")
		return
	}
	s.send(c, reply)
}
