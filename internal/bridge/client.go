package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/and2long/tcm/bridge/internal/dispatch"
)

// DialTimeout bounds connecting to the socket.
const DialTimeout = 5 * time.Second

// Client calls a bridge over its Unix socket.
type Client struct {
	socketPath string
}

// NewClient creates a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{socketPath: path}
}

// Available reports whether the socket accepts connections.
func (c *Client) Available() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Call sends req and waits for the response. ctx's deadline, if any,
// applies to the whole exchange.
func (c *Client) Call(ctx context.Context, req dispatch.Request) (*dispatch.Response, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	conn, err := d.DialContext(dialCtx, "unix", c.socketPath)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("bridge not available: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp dispatch.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}
