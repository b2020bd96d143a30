package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameBytes = 1 << 20

// Peer is a registered connection the registries can fan out to.
type Peer interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Client wraps one websocket connection. Writes are serialised; each write is
// bounded by the configured timeout so a stalled peer cannot hold a fan-out.
type Client struct {
	conn         *websocket.Conn
	info         ConnInfo
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn, info ConnInfo, writeTimeout time.Duration) *Client {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	conn.SetReadLimit(maxFrameBytes)
	return &Client{conn: conn, info: info, writeTimeout: writeTimeout}
}

func (c *Client) ID() string { return c.info.ConnID }

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo { return c.info }

// Send writes one text frame.
func (c *Client) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON marshals v and writes it as one text frame.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Ping sends a keep-alive control frame.
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Read blocks for the next data frame.
func (c *Client) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// CloseWith sends a close frame carrying code and reason, then closes the socket.
func (c *Client) CloseWith(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	return c.Close()
}

// Close closes the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
