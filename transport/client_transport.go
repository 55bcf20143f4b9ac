// Package transport implements the client-side correlation engine.
//
// ClientTransport lets many goroutines issue concurrent calls over one connection.
// Each request gets a unique correlation id, its Call is registered with a single
// dispatcher goroutine before the frame is written, and the dispatcher routes every
// inbound response to the Call with the matching id.
//
//	goroutine-1 ──Send(id=A)──┐
//	goroutine-2 ──Send(id=B)──┼──→ single connection ──→ endpoint
//	goroutine-3 ──Send(id=C)──┘
//
//	dispatch:  ←── response(id=B) → pending[B] → goroutine-2 wakes up
//
// The pending table is owned by the dispatcher alone. Senders and cancelling callers
// reach it only through channels, so the table needs no lock.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"surreal-rpc/codec"
	"surreal-rpc/message"
	"surreal-rpc/protocol"
)

// ClientTransport multiplexes calls over a single connection.
type ClientTransport struct {
	conn     protocol.Conn
	codec    codec.Codec
	newID    func() string
	logger   *zap.Logger
	settings *protocol.Settings

	register chan registration
	cancel   chan string
	inspect  chan chan int
	frames   chan inbound
	readErr  chan error

	sending sync.Mutex // Frames from concurrent senders and the heartbeat must not interleave

	closing        chan struct{}
	closeRequested atomic.Bool
	closeOnce      sync.Once
	closeErr       error
	done           chan struct{} // Closed when the dispatcher exits
	err            error         // Why the dispatcher exited, readable after done
}

type registration struct {
	call *Call
	ack  chan error
}

type inbound struct {
	kind int
	data []byte
}

type Option func(*ClientTransport)

func WithCodec(c codec.Codec) Option {
	return func(t *ClientTransport) { t.codec = c }
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *ClientTransport) { t.logger = logger }
}

// WithIDGenerator replaces the correlation id source. The generator must be safe for concurrent use.
func WithIDGenerator(gen func() string) Option {
	return func(t *ClientTransport) { t.newID = gen }
}

func WithSettings(settings *protocol.Settings) Option {
	return func(t *ClientTransport) { t.settings = settings }
}

// NewClientTransport takes ownership of conn and starts the background goroutines:
//   - readLoop: the only reader of conn, hands frames to the dispatcher
//   - dispatch: owns the pending table and resolves calls
//   - heartbeatLoop: pings the peer, when enabled in the settings
func NewClientTransport(conn protocol.Conn, opts ...Option) *ClientTransport {
	t := &ClientTransport{
		conn:     conn,
		codec:    codec.GetCodec(codec.CodecTypeJSON),
		newID:    NewULID,
		logger:   zap.NewNop(),
		settings: protocol.DefaultSettings(),
		register: make(chan registration),
		cancel:   make(chan string),
		inspect:  make(chan chan int),
		frames:   make(chan inbound),
		readErr:  make(chan error, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.readLoop()
	go t.dispatch()
	if t.settings.HeartbeatInterval > 0 {
		go t.heartbeatLoop(t.settings.HeartbeatInterval)
	}
	return t
}

// Send issues a call and returns its handle without waiting for the response.
//
// The call is registered with the dispatcher, and the registration acknowledged,
// before the frame is written. A response that arrives right after the write can
// therefore never miss its caller.
func (t *ClientTransport) Send(ctx context.Context, method string, params any) (*Call, error) {
	var (
		call  *Call
		frame []byte
	)
	for attempt := 1; ; attempt++ {
		id := t.newID()
		data, err := t.codec.EncodeRequest(&message.Request{ID: id, Method: method, Params: params})
		if err != nil {
			return nil, &EncodeError{Method: method, Err: err}
		}

		call = newCall(t, id, method)
		err = t.enqueue(ctx, call)
		if err == nil {
			frame = data
			break
		}
		if errors.Is(err, ErrDuplicateID) && attempt < maxIDAttempts {
			t.logger.Warn("correlation id collision, drawing a new id", zap.String("id", id))
			continue
		}
		return nil, err
	}

	if err := t.write(protocol.TextMessage, frame); err != nil {
		call.Cancel()
		return nil, &WriteError{ID: call.ID, Err: err}
	}
	t.logger.Debug("request sent", zap.String("id", call.ID), zap.String("method", method))
	return call, nil
}

// Call sends a request and waits for its response.
func (t *ClientTransport) Call(ctx context.Context, method string, params any) (*message.Response, error) {
	call, err := t.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

// enqueue hands call to the dispatcher and waits for the acknowledgement.
func (t *ClientTransport) enqueue(ctx context.Context, call *Call) error {
	reg := registration{call: call, ack: make(chan error, 1)}
	select {
	case t.register <- reg:
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// the dispatcher acknowledges in the same step it receives the registration
	return <-reg.ack
}

func (t *ClientTransport) write(kind int, data []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()
	if t.settings.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
	}
	return t.conn.WriteMessage(kind, data)
}

// readLoop is the only reader of the connection. The frames channel is unbuffered,
// so every frame read before a read error reaches the dispatcher before that error does.
func (t *ClientTransport) readLoop() {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			t.readErr <- err
			return
		}
		select {
		case t.frames <- inbound{kind: kind, data: data}:
		case <-t.done:
			return
		}
	}
}

// dispatch is the only goroutine that touches the pending table.
func (t *ClientTransport) dispatch() {
	pending := newPendingTable()
	var cause error

	defer func() {
		t.err = cause
		t.conn.Close()

		if n := len(pending); n > 0 {
			t.logger.Info("abandoning pending calls", zap.Int("count", n), zap.Error(cause))
		}
		pending.drain(func(call *Call) {
			call.resolve(nil, errors.Join(ErrAbandoned, cause))
		})
		close(t.done)
	}()

	for {
		select {
		case reg := <-t.register:
			reg.ack <- pending.insert(reg.call)

		case id := <-t.cancel:
			if call, ok := pending.take(id); ok {
				call.resolve(nil, ErrCanceled)
			}

		case reply := <-t.inspect:
			reply <- len(pending)

		case f := <-t.frames:
			t.handleFrame(pending, f)

		case err := <-t.readErr:
			switch {
			case t.closeRequested.Load():
				cause = ErrClosed
			case protocol.IsExpectedClose(err):
				cause = err
				t.logger.Info("connection closed by peer", zap.Error(err))
			default:
				cause = err
				t.logger.Warn("connection read failed", zap.Error(err))
			}
			return

		case <-t.closing:
			cause = ErrClosed
			return
		}
	}
}

// handleFrame routes one inbound frame. A malformed frame never stops the dispatcher.
func (t *ClientTransport) handleFrame(pending pendingTable, f inbound) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("recovered while handling frame", zap.Any("panic", r))
		}
	}()

	if f.kind != protocol.TextMessage {
		t.logger.Debug("ignoring non-text frame", zap.Int("type", f.kind))
		return
	}

	resp, err := t.codec.DecodeResponse(f.data)
	if err != nil {
		id, ok := t.codec.PeekID(f.data)
		if !ok {
			t.logger.Warn("dropping undecodable frame", zap.Error(err), zap.Int("size", len(f.data)))
			return
		}
		call, ok := pending.take(id)
		if !ok {
			t.logger.Debug("dropping undecodable frame for unknown id", zap.String("id", id), zap.Error(err))
			return
		}
		call.resolve(nil, &DecodeError{ID: id, Err: err})
		return
	}

	call, ok := pending.take(resp.ID)
	if !ok {
		t.logger.Debug("dropping response for unknown id", zap.String("id", resp.ID))
		return
	}
	if resp.Error != nil {
		call.resolve(resp, resp.Error)
		return
	}
	call.resolve(resp, nil)
}

// heartbeatLoop pings the peer so idle connections are kept open and dead ones are noticed.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.write(protocol.PingMessage, nil); err != nil {
				t.logger.Debug("heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

// Pending returns the number of calls waiting for a response.
func (t *ClientTransport) Pending() int {
	reply := make(chan int, 1)
	select {
	case t.inspect <- reply:
		return <-reply
	case <-t.done:
		return 0
	}
}

// Done is closed once the transport stopped dispatching.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the transport stopped, or nil while it is running.
func (t *ClientTransport) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Close sends a close frame and stops the dispatcher. Pending calls resolve with ErrAbandoned.
func (t *ClientTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeRequested.Store(true)
		select {
		case <-t.done:
		default:
			t.sending.Lock()
			t.closeErr = protocol.WriteClose(t.conn, t.settings.WriteTimeout)
			t.sending.Unlock()
		}
		close(t.closing)
	})
	<-t.done
	return t.closeErr
}
