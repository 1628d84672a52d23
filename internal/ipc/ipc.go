// Package ipc implements the local-only length-delimited JSON frame
// protocol the Service Controller exposes over a Unix domain socket:
// one client at a time, request-then-reply, with a `status=queued`
// acknowledgement for commands the controller answers asynchronously.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Status is the reply's outcome classification.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusQueued  Status = "queued"
)

// Request is one client->server frame.
type Request struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Reply is one server->client frame.
type Reply struct {
	RequestID string          `json:"request_id"`
	Status    Status          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

const maxFrameSize = 16 << 20 // 16MiB, generous for a status/stats payload

// writeFrame writes a 4-byte big-endian length prefix followed by the
// JSON-encoded value, matching the length-delimited framing both the
// server and client sides use.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(body))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err // includes io.EOF on a clean close, propagated to caller
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	return json.Unmarshal(body, v)
}
