package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/domain"
)

// State is the lifecycle state of a room transport.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultConnectRetries = 2
	DefaultRetryBackoff   = 500 * time.Millisecond
	DefaultWriteTimeout   = 5 * time.Second
)

// ErrConnectExhausted is reported when every connect attempt failed.
var ErrConnectExhausted = errors.New("could not connect to room")

// Handler receives link events. Every call carries the id returned by
// Open, so a receiver can tell a replaced link's late events apart.
// Handlers are called from the link's goroutine, never while the manager
// holds its lock.
type Handler interface {
	HandleState(link uint64, state State, err error)
	HandleFrame(link uint64, data []byte)
}

// Option is a function that configures a Manager.
type Option func(*Manager)

// WithConnectTimeout bounds each dial attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithRetry sets how many times a failed dial is retried and the initial
// backoff, which doubles after every failure.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(m *Manager) {
		m.retries = retries
		m.backoff = backoff
	}
}

// WithWriteTimeout bounds a single Send.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) { m.writeTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager keeps at most one live link. Opening a link always tears the
// previous one down first.
type Manager struct {
	dialer   Dialer
	resolver config.Resolver

	connectTimeout time.Duration
	retries        int
	backoff        time.Duration
	writeTimeout   time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	seq     uint64
	current *link
}

// NewManager creates an idle manager.
func NewManager(dialer Dialer, resolver config.Resolver, opts ...Option) *Manager {
	m := &Manager{
		dialer:         dialer,
		resolver:       resolver,
		connectTimeout: DefaultConnectTimeout,
		retries:        DefaultConnectRetries,
		backoff:        DefaultRetryBackoff,
		writeTimeout:   DefaultWriteTimeout,
		logger:         slog.Default().With("component", "transport"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// link is one activation: Connecting -> Open -> Closed.
type link struct {
	id     uint64
	room   domain.Room
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	conn  Conn
	err   error
}

func (l *link) snapshot() (State, Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.conn, l.err
}

// open moves the link to Open. It fails when the link was shut down
// while dialing.
func (l *link) open(conn Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnecting {
		return false
	}
	l.state = StateOpen
	l.conn = conn
	return true
}

// finish moves the link to Closed and releases the connection. It reports
// whether this call made the transition.
func (l *link) finish(err error) bool {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return false
	}
	l.state = StateClosed
	l.err = err
	conn := l.conn
	l.mu.Unlock()

	l.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	return true
}

// Open tears down any current link and starts connecting to room in the
// background. It returns the new link id immediately.
func (m *Manager) Open(room domain.Room, h Handler) uint64 {
	m.mu.Lock()
	prev := m.current
	m.seq++
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{id: m.seq, room: room, ctx: ctx, cancel: cancel, state: StateConnecting}
	m.current = l
	m.mu.Unlock()

	if prev != nil {
		prev.finish(nil)
		m.logger.Debug("Previous link closed", "link", prev.id, "address", prev.room.Address)
	}

	go m.run(l, h)
	return l.id
}

// Close tears down the current link and returns the manager to Idle. It
// does not wait for the link goroutine, so it is safe to call from a
// Handler's caller while holding that caller's locks.
func (m *Manager) Close() {
	m.mu.Lock()
	l := m.current
	m.current = nil
	m.mu.Unlock()

	if l != nil && l.finish(nil) {
		m.logger.Info("Room link closed", "link", l.id, "address", l.room.Address)
	}
}

// State returns the current link's state, or Idle when there is none.
func (m *Manager) State() State {
	m.mu.Lock()
	l := m.current
	m.mu.Unlock()
	if l == nil {
		return StateIdle
	}
	state, _, _ := l.snapshot()
	return state
}

// Current returns the current link id and room, if any.
func (m *Manager) Current() (uint64, domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0, domain.Room{}, false
	}
	return m.current.id, m.current.room, true
}

// Send writes payload on the current link. It fails with
// domain.ErrNotConnected unless the link is Open; nothing is queued.
func (m *Manager) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	l := m.current
	m.mu.Unlock()
	if l == nil {
		return domain.ErrNotConnected
	}
	state, conn, _ := l.snapshot()
	if state != StateOpen || conn == nil {
		return domain.ErrNotConnected
	}

	wctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, payload); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (m *Manager) isCurrent(l *link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == l
}

func (m *Manager) notify(h Handler, l *link, state State, err error) {
	if m.isCurrent(l) {
		h.HandleState(l.id, state, err)
	}
}

// run dials with bounded retries and then pumps frames until the link ends.
func (m *Manager) run(l *link, h Handler) {
	logger := m.logger.With("link", l.id, "address", l.room.Address)
	m.notify(h, l, StateConnecting, nil)

	conn, err := m.dial(l, logger)
	if err != nil {
		if l.ctx.Err() != nil {
			return
		}
		if l.finish(err) {
			logger.Warn("Room link failed", "error", err)
			m.notify(h, l, StateClosed, err)
		}
		return
	}
	if !l.open(conn) {
		_ = conn.Close()
		return
	}
	logger.Info("Room link open")
	m.notify(h, l, StateOpen, nil)

	for {
		data, err := conn.Read(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if l.finish(err) {
				logger.Info("Room link closed by transport", "error", err)
				m.notify(h, l, StateClosed, err)
			}
			return
		}
		if !m.isCurrent(l) {
			continue
		}
		h.HandleFrame(l.id, data)
	}
}

func (m *Manager) dial(l *link, logger *slog.Logger) (Conn, error) {
	target, err := RoomURL(m.resolver.BaseURL(config.ProtocolWS), l.room)
	if err != nil {
		return nil, err
	}

	backoff := m.backoff
	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-l.ctx.Done():
				timer.Stop()
				return nil, l.ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		ctx, cancel := context.WithTimeout(l.ctx, m.connectTimeout)
		conn, err := m.dialer.Dial(ctx, target)
		cancel()
		if err == nil {
			return conn, nil
		}
		if l.ctx.Err() != nil {
			return nil, l.ctx.Err()
		}
		lastErr = err
		logger.Debug("Connect attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectExhausted, m.retries+1, lastErr)
}
