package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client is a thin synchronous client for the IPC protocol, usable by
// tests and by any future CLI/GUI client — both halves of the request/
// reply exchange get a home, not just the server side.
type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 10 * time.Second}
}

// Call opens a fresh connection, sends one request, and returns the reply.
func (c *Client) Call(commandType string, data any) (*Reply, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial ipc socket: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal request data: %w", err)
		}
		raw = encoded
	}

	req := Request{
		Type:      commandType,
		RequestID: uuid.NewString(),
		Timestamp: time.Now(),
		Data:      raw,
	}
	if err := writeFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var reply Reply
	if err := readFrame(conn, &reply); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return &reply, nil
}
