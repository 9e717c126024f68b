package api

import (
	"fmt"
	"net"
	"time"

	"github.com/goccy/go-json"

	"github.com/VanDung-dev/root2avro/bridge"
)

// Client is a TCP client of ArrowServer. It is not safe for concurrent use.
type Client struct {
	conn net.Conn
}

// Dial connects to an ArrowServer.
func Dial(address string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return &Client{conn: conn}, nil
}

// Authenticate sends the connection token.
func (c *Client) Authenticate(token string) error {
	return c.control(ControlMessage{Type: ControlAuth, Token: token})
}

// SetOptions changes the options of later conversions on this connection.
func (c *Client) SetOptions(opts bridge.Options) error {
	return c.control(ControlMessage{Type: ControlOptions, Options: &opts})
}

// Convert sends Arrow IPC data and returns the converted output.
func (c *Client) Convert(ipcData []byte) ([]byte, error) {
	if err := WriteMessage(c.conn, ipcData); err != nil {
		return nil, err
	}
	return ReadResponse(c.conn)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) control(msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := WriteMessage(c.conn, data); err != nil {
		return err
	}
	payload, err := ReadResponse(c.conn)
	if err != nil {
		return err
	}
	var resp ControlResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("invalid control response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	return nil
}
