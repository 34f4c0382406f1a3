// Package client implements a minimal kvs wire-protocol client: one
// request, one response, per call.
package client

import (
	"fmt"
	"net"

	"github.com/calvinalkan/kvs/internal/engine"
	"github.com/calvinalkan/kvs/internal/protocol"
)

// Client is a single TCP connection to a kvs server.
type Client struct {
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder
}

// New dials addr and returns a Client ready to issue requests.
func New(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	return &Client{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  protocol.NewDecoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	if err != nil {
		return fmt.Errorf("client: close: %w", err)
	}

	return nil
}

func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	err := c.enc.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("client: %w", err)
	}

	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("client: %w", err)
	}

	return resp, nil
}

// Set stores value under key.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpSet, Key: key, Value: value})
	if err != nil {
		return err
	}

	if resp.Status == protocol.StatusErr {
		return fmt.Errorf("client: set %q: %s", key, resp.Error)
	}

	return nil
}

// Get fetches the value stored under key. The second return value is false
// if the key is not present.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpGet, Key: key})
	if err != nil {
		return "", false, err
	}

	if resp.Status == protocol.StatusErr {
		return "", false, fmt.Errorf("client: get %q: %s", key, resp.Error)
	}

	return resp.Value, resp.Found, nil
}

// Remove deletes key. It returns an error if key is not present.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpRemove, Key: key})
	if err != nil {
		return err
	}

	if resp.Status == protocol.StatusErr {
		if resp.Error == "Key not found" {
			return fmt.Errorf("client: remove %q: %w", key, engine.ErrKeyNotFound)
		}

		return fmt.Errorf("client: remove %q: %s", key, resp.Error)
	}

	return nil
}
