// ABOUTME: Text-frame transport abstraction with a gorilla/websocket implementation
// ABOUTME: Lets tests swap the dialer without a network

package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Conn is a bidirectional text-frame connection.
type Conn interface {
	ReadText() (string, error)
	WriteText(frame string) error
	Close() error
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebSocketDialer dials real WebSocket connections.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a WebSocket connection to url.
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes; gorilla allows one concurrent reader and one
// concurrent writer.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *wsConn) ReadText() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *wsConn) WriteText(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
