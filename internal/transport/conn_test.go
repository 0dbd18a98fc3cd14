package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/transport"
)

// roomServer is a minimal room relay: every frame received on /ws/:address
// is broadcast to all connections of that address, sender included.
type roomServer struct {
	key string

	mu    sync.Mutex
	conns map[string][]*websocket.Conn
}

func (s *roomServer) handle(c echo.Context) error {
	if c.QueryParam("key") != s.key {
		return c.NoContent(http.StatusUnauthorized)
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	address := c.Param("address")
	s.mu.Lock()
	s.conns[address] = append(s.conns[address], conn)
	s.mu.Unlock()

	ctx := c.Request().Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}
		s.mu.Lock()
		peers := append([]*websocket.Conn(nil), s.conns[address]...)
		s.mu.Unlock()
		for _, peer := range peers {
			_ = peer.Write(ctx, typ, data)
		}
	}
}

func startRoomServer(t *testing.T, key string) string {
	t.Helper()
	s := &roomServer{key: key, conns: make(map[string][]*websocket.Conn)}
	e := echo.New()
	e.HideBanner = true
	e.GET("/ws/:address", s.handle)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type frameSink struct {
	mu     sync.Mutex
	frames []string
	states []transport.State
}

func (f *frameSink) HandleState(_ uint64, state transport.State, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *frameSink) HandleFrame(_ uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(data))
}

func (f *frameSink) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func (f *frameSink) lastState() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return transport.StateIdle
	}
	return f.states[len(f.states)-1]
}

func TestDialers_RoundTrip(t *testing.T) {
	dialers := map[string]transport.Dialer{
		"coder":   transport.CoderDialer{},
		"gorilla": transport.GorillaDialer{},
	}

	for name, dialer := range dialers {
		t.Run(name, func(t *testing.T) {
			base := startRoomServer(t, "secret")
			m := transport.NewManager(dialer, config.StaticResolver{WS: base}, transport.WithConnectTimeout(2*time.Second))
			t.Cleanup(m.Close)

			room, err := domain.NewRoom("Alpha", "0xabc", "secret")
			require.NoError(t, err)

			sink := &frameSink{}
			m.Open(room, sink)
			require.Eventually(t, func() bool { return m.State() == transport.StateOpen }, 2*time.Second, 10*time.Millisecond)

			msg, err := domain.NewChatMessage("hello", "alice", time.UnixMilli(1000))
			require.NoError(t, err)
			payload, err := msg.Encode()
			require.NoError(t, err)
			require.NoError(t, m.Send(context.Background(), payload))

			require.Eventually(t, func() bool { return len(sink.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
			got := domain.DecodeFrame([]byte(sink.received()[0]), time.Now())
			assert.Equal(t, msg, got)
		})
	}
}

func TestDialers_RejectedKey(t *testing.T) {
	base := startRoomServer(t, "secret")
	m := transport.NewManager(transport.CoderDialer{}, config.StaticResolver{WS: base},
		transport.WithRetry(0, 0), transport.WithConnectTimeout(2*time.Second))
	t.Cleanup(m.Close)

	room, err := domain.NewRoom("Alpha", "0xabc", "wrong")
	require.NoError(t, err)

	sink := &frameSink{}
	m.Open(room, sink)
	require.Eventually(t, func() bool { return m.State() == transport.StateClosed }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return sink.lastState() == transport.StateClosed }, 2*time.Second, 10*time.Millisecond)
}
