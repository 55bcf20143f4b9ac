package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"surreal-rpc/protocol"
)

var errConnClosed = errors.New("fake conn closed")

type frame struct {
	kind int
	data []byte
}

type wireRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeConn is an in-memory protocol.Conn. Tests play the peer by pushing
// inbound frames and reading what the transport wrote.
type fakeConn struct {
	inbound  chan frame
	readErr  chan error
	outbound chan []byte
	closed   chan struct{}

	closeOnce sync.Once
	pings     atomic.Int32

	mu       sync.Mutex
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan frame),
		readErr:  make(chan error, 1),
		outbound: make(chan []byte, 1024),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.kind, f.data, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	switch kind {
	case protocol.TextMessage:
		c.outbound <- append([]byte(nil), data...)
	case protocol.PingMessage:
		c.pings.Add(1)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) hangUp() {
	c.readErr <- io.EOF
}

func (c *fakeConn) push(t *testing.T, kind int, data string) {
	t.Helper()
	select {
	case c.inbound <- frame{kind: kind, data: []byte(data)}:
	case <-time.After(2 * time.Second):
		t.Fatalf("transport did not read frame %q", data)
	}
}

func (c *fakeConn) reply(t *testing.T, id string, result string) {
	t.Helper()
	c.push(t, protocol.TextMessage, fmt.Sprintf(`{"id":%q,"result":%s}`, id, result))
}

func (c *fakeConn) nextRequest(t *testing.T) wireRequest {
	t.Helper()
	select {
	case data := <-c.outbound:
		var req wireRequest
		require.NoError(t, json.Unmarshal(data, &req))
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request written")
		return wireRequest{}
	}
}

// flush makes sure every frame pushed so far has been handled by the dispatcher.
func (c *fakeConn) flush(t *testing.T, tr *ClientTransport) int {
	t.Helper()
	c.reply(t, "flush-"+NewULID(), "null")
	return tr.Pending()
}

// sequentialIDs yields r1, r2, r3, ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("r%d", n.Add(1))
	}
}

// scriptedIDs yields the given ids in order, then falls back to ULIDs.
func scriptedIDs(ids ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return NewULID()
		}
		id := ids[0]
		ids = ids[1:]
		return id
	}
}
