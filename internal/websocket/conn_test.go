package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
)

var (
	errConnClosed = errors.New("connection closed")
	errDeadline   = errors.New("i/o timeout")
)

type frame struct {
	typ  int
	data []byte
}

// fakeConn is an in-memory websocket connection. Tests push client frames
// with send and read server text messages with next.
type fakeConn struct {
	in     chan frame
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	// stall makes text writes hang until the write deadline passes, like a
	// peer that stopped reading.
	stall atomic.Bool

	mu            sync.Mutex
	pingHandler   func(string) error
	pongHandler   func(string) error
	controls      []int
	readDeadline  time.Time
	writeDeadline time.Time
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan frame, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

// after fires when d passes; a zero deadline never fires.
func after(d time.Time) <-chan time.Time {
	if d.IsZero() {
		return nil
	}
	return time.After(time.Until(d))
}

func (c *fakeConn) deadlines() (read, write time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readDeadline, c.writeDeadline
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		read, _ := c.deadlines()
		select {
		case f := <-c.in:
			return f.typ, f.data, nil
		case <-c.closed:
			return 0, nil, errConnClosed
		case <-after(read):
			// the deadline may have moved while we waited
			if current, _ := c.deadlines(); !time.Now().Before(current) {
				return 0, nil, errDeadline
			}
		}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	if c.stall.Load() {
		_, write := c.deadlines()
		select {
		case <-c.closed:
			return errConnClosed
		case <-after(write):
			return errDeadline
		}
	}
	c.out <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) SetPingHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingHandler = h
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
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

func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	c.in <- frame{typ: websocket.TextMessage, data: data}
}

func (c *fakeConn) sendRaw(typ int, data string) {
	c.in <- frame{typ: typ, data: []byte(data)}
}

// next returns the next text message written by the server.
func (c *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-c.out:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("server wrote invalid JSON %q: %v", data, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server message")
		return nil
	}
}

func (c *fakeConn) expect(t *testing.T, typ string) map[string]any {
	t.Helper()
	m := c.next(t)
	if m["type"] != typ {
		t.Fatalf("message type = %v, want %s (message %v)", m["type"], typ, m)
	}
	return m
}
