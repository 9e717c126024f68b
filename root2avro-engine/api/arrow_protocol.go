package api

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMessageSize is the maximum allowed message size (50MB).
const MaxMessageSize = 50 * 1024 * 1024 // 50MB

// Response status bytes.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

var (
	// ErrMessageTooLarge is returned when a message exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")
	// ErrEmptyResponse is returned for a response frame without status byte.
	ErrEmptyResponse = errors.New("empty response frame")
	// ErrRemote wraps the error text returned by a server.
	ErrRemote = errors.New("remote error")
)

// ReadMessage reads a length-prefixed message from the reader.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes a length-prefixed message to the writer.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > math.MaxUint32 {
		return fmt.Errorf("%w: data length %d exceeds uint32 max", ErrMessageTooLarge, len(data))
	}

	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	length := uint32(len(data)) // #nosec G115 - bounds checked above
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}

	return nil
}

// WriteResponse writes a response frame: [status] [payload].
func WriteResponse(w io.Writer, status byte, payload []byte) error {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, status)
	frame = append(frame, payload...)
	return WriteMessage(w, frame)
}

// ReadResponse reads a response frame. An error status is returned as an
// ErrRemote error carrying the server's message.
func ReadResponse(r io.Reader) ([]byte, error) {
	frame, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(frame)
}

// DecodeResponse splits a response frame into its payload or remote error.
func DecodeResponse(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyResponse
	}
	if frame[0] != StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrRemote, frame[1:])
	}
	return frame[1:], nil
}
