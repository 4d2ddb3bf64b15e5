package protocol

import "errors"

var (
	ErrInvalidMessage  = errors.New("protocol: invalid message")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrMalformedLine   = errors.New("protocol: malformed message line")
	ErrMessageTooLarge = errors.New("protocol: message line too large")
)
