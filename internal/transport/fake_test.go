package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// Read in order; writes are recorded.
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) deliver(data string) { c.frames <- []byte(data) }

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed conn")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// fakeDialer hands out scripted results in order. An entry with a nil conn
// and nil error blocks until the dial context ends.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	urls    []string
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) push(r dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, r)
}

func (d *fakeDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, rawURL)
	var r dialResult
	if len(d.results) > 0 {
		r = d.results[0]
		d.results = d.results[1:]
	}
	d.mu.Unlock()

	if r.conn == nil && r.err == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type stateEvent struct {
	link  uint64
	state State
	err   error
}

type frameEvent struct {
	link uint64
	data string
}

// recorder is a Handler that records every callback.
type recorder struct {
	mu     sync.Mutex
	states []stateEvent
	frames []frameEvent
}

func (r *recorder) HandleState(link uint64, state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, stateEvent{link, state, err})
}

func (r *recorder) HandleFrame(link uint64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frameEvent{link, string(data)})
}

func (r *recorder) stateLog() []stateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stateEvent(nil), r.states...)
}

func (r *recorder) frameLog() []frameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frameEvent(nil), r.frames...)
}

func (r *recorder) lastState() (stateEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return stateEvent{}, false
	}
	return r.states[len(r.states)-1], true
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
