package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MaxLineBytes bounds one encoded message line, delimiter included.
const MaxLineBytes = 128 * 1024

// WriteMessage encodes one message as a single newline-terminated JSON line.
func WriteMessage(w io.Writer, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(payload)+1 > MaxLineBytes {
		return ErrMessageTooLarge
	}
	payload = append(payload, '\n')
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadMessage consumes exactly one line and decodes it.
//
// A non-parseable line yields an error wrapping ErrMalformedLine; the stream
// position is already past the offending line, so the caller may keep reading.
// Any other error is a transport-level failure (stream end or stream error).
func ReadMessage(r *bufio.Reader) (Message, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return Message{}, err
	}
	if len(line) > MaxLineBytes {
		return Message{}, ErrMessageTooLarge
	}
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return m, nil
}
