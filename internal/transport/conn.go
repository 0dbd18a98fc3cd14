// Package transport owns the single live WebSocket session bound to the
// active room.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	coderws "github.com/coder/websocket"
	gorillaws "github.com/gorilla/websocket"
	"github.com/nfrund/walletchat/internal/domain"
)

// MaxFrameSize bounds a single inbound frame. It matches the room server's limit.
const MaxFrameSize = 1 << 20

// Conn abstracts a message-oriented connection so the manager does not
// depend on a specific WebSocket library.
type Conn interface {
	// Read blocks for the next frame.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error
}

// Dialer opens a Conn to a WebSocket URL. The context bounds the handshake only.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// RoomURL builds <base>/ws/<address>?key=<accessKey>.
func RoomURL(base string, room domain.Room) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid websocket base url %q: %w", base, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid websocket base url %q: scheme must be ws or wss", base)
	}
	u = u.JoinPath("ws", room.Address)
	q := u.Query()
	q.Set("key", room.AccessKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CoderDialer dials with github.com/coder/websocket.
type CoderDialer struct {
	HTTPClient *http.Client
}

// Dial implements Dialer.
func (d CoderDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := coderws.Dial(ctx, rawURL, &coderws.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}
	conn.SetReadLimit(MaxFrameSize)
	return &coderConn{conn: conn}, nil
}

type coderConn struct {
	conn *coderws.Conn
}

func (c *coderConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *coderConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, coderws.MessageText, data)
}

func (c *coderConn) Close() error {
	return c.conn.Close(coderws.StatusNormalClosure, "leaving room")
}

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	Dialer *gorillaws.Dialer
}

// Dial implements Dialer.
func (d GorillaDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = gorillaws.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}
	conn.SetReadLimit(MaxFrameSize)
	return &gorillaConn{conn: conn}, nil
}

// gorillaConn serialises writers; gorilla allows one concurrent writer.
type gorillaConn struct {
	conn *gorillaws.Conn
	wmu  sync.Mutex
}

func (c *gorillaConn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *gorillaConn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(gorillaws.TextMessage, data)
}

func (c *gorillaConn) Close() error {
	msg := gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "leaving room")
	_ = c.conn.WriteControl(gorillaws.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
