// Package server provides the WebSocket command surface for the UI shell.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// upgrader configures the WebSocket upgrader with origin validation for same-origin and local network connections.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Allow requests without Origin header (same-origin requests)
		if origin == "" {
			return true
		}
		// Allow localhost and local network origins
		host := r.Host
		if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
			return true
		}
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
		// Allow local network IPs (192.168.x.x, 10.x.x.x)
		if strings.Contains(origin, "192.168.") || strings.Contains(origin, "10.") {
			return true
		}
		slog.Warn("rejected WebSocket connection", "origin", origin)
		return false
	},
}

// Client wraps one WebSocket connection. The status push loop and
// asynchronous command replies write concurrently, so frames are
// serialized through a mutex.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Upgrade upgrades an HTTP connection to a WebSocket client.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// WriteJSON sends one JSON frame to the client.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// ReadCommand blocks until the client sends the next command.
func (c *Client) ReadCommand() (WSCommand, error) {
	var cmd WSCommand
	err := c.conn.ReadJSON(&cmd)
	return cmd, err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
