// Package server implements a WebSocket RPC endpoint that speaks the same envelope
// protocol as the client. It backs the `surrealctl mock` command and the end-to-end tests.
//
// Request processing pipeline:
//
//	Upgrade → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing, replies in any order)
//	    → decode {id, method, params} → handler → encode {id, result|error} → write
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"surreal-rpc/message"
	"surreal-rpc/protocol"
	"surreal-rpc/registry"
)

// JSON-RPC style error codes used in error envelopes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32000
)

// HandlerFunc serves one method. The returned value becomes the result member of the reply.
// Returning a *message.RPCError controls the error code sent back.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type reply struct {
	ID     string            `json:"id"`
	Result any               `json:"result"`
	Error  *message.RPCError `json:"error,omitempty"`
}

type announcement struct {
	registry registry.Registry
	service  string
	url      string
}

// Server is the RPC endpoint.
type Server struct {
	mu         sync.RWMutex
	methods    map[string]HandlerFunc
	conns      map[*websocket.Conn]*sync.Mutex // connection -> its write mutex
	httpServer *http.Server
	announced  []announcement

	upgrader websocket.Upgrader
	logger   *zap.Logger
	wg       sync.WaitGroup // Tracks in-flight requests for graceful shutdown
	shutdown atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		methods: make(map[string]HandlerFunc),
		conns:   make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handle serves method with h, replacing any previous handler.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
}

// Register serves every exported method of rcvr that has the HandlerFunc signature.
// The wire method name is the Go method name in lower case.
func (s *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	for name, h := range svc.handlers() {
		s.Handle(name, h)
	}
	return nil
}

func (s *Server) lookup(method string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.methods[method]
	return h, ok
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the peer leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.shutdown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.handleConn(conn)
}

// ListenAndServe serves the endpoint on address at path /rpc.
func (s *Server) ListenAndServe(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/rpc", s)

	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("rpc endpoint listening", zap.String("addr", listener.Addr().String()))
	err := httpServer.Serve(listener)
	if s.shutdown.Load() && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Announce registers this endpoint under service so clients can discover it.
// Shutdown deregisters it again.
func (s *Server) Announce(ctx context.Context, reg registry.Registry, service string, endpoint registry.Endpoint, ttl int64) error {
	if err := reg.Register(ctx, service, endpoint, ttl); err != nil {
		return fmt.Errorf("announce %s: %w", endpoint.URL, err)
	}
	s.mu.Lock()
	s.announced = append(s.announced, announcement{registry: reg, service: service, url: endpoint.URL})
	s.mu.Unlock()
	return nil
}

// handleConn reads frames sequentially and dispatches each request to its own goroutine.
// The per-connection write mutex keeps concurrent replies from interleaving.
func (s *Server) handleConn(conn *websocket.Conn) {
	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.conns[conn] = writeMu
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !protocol.IsExpectedClose(err) && !s.shutdown.Load() {
				s.logger.Debug("connection read ended", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if !s.track() {
			continue
		}
		go s.handleRequest(conn, writeMu, data)
	}
}

// track counts a new in-flight request unless shutdown began.
// The check and the Add are ordered against Shutdown setting the flag by s.mu.
func (s *Server) track() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutdown.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleRequest(conn *websocket.Conn, writeMu *sync.Mutex, data []byte) {
	defer s.wg.Done()

	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		s.write(conn, writeMu, reply{Error: &message.RPCError{Code: CodeParseError, Message: "Parse error"}})
		return
	}

	h, ok := s.lookup(req.Method)
	if !ok {
		s.write(conn, writeMu, reply{ID: req.ID, Error: &message.RPCError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}})
		return
	}

	result, err := s.call(h, req)
	if err != nil {
		var rpcErr *message.RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &message.RPCError{Code: CodeInternal, Message: err.Error()}
		}
		s.write(conn, writeMu, reply{ID: req.ID, Error: rpcErr})
		return
	}
	s.write(conn, writeMu, reply{ID: req.ID, Result: result})
}

// call runs a handler, turning a panic into an internal error reply.
func (s *Server) call(h HandlerFunc, req request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.String("method", req.Method), zap.Any("panic", r))
			err = fmt.Errorf("internal error in %s", req.Method)
		}
	}()
	return h(s.ctx, req.Params)
}

func (s *Server) write(conn *websocket.Conn, writeMu *sync.Mutex, r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("failed to encode reply", zap.String("id", r.ID), zap.Error(err))
		data, _ = json.Marshal(reply{ID: r.ID, Error: &message.RPCError{Code: CodeInternal, Message: "unencodable result"}})
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("failed to write reply", zap.String("id", r.ID), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister announced endpoints (clients stop discovering this server)
//  2. Set shutdown flag and stop accepting connections
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining connections and cancel handlers still running
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.RLock()
	announced := append([]announcement(nil), s.announced...)
	httpServer := s.httpServer
	s.mu.RUnlock()

	for _, a := range announced {
		if err := a.registry.Deregister(ctx, a.service, a.url); err != nil {
			s.logger.Warn("deregister failed", zap.String("url", a.url), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.shutdown.Store(true)
	s.mu.Unlock()
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	s.mu.Lock()
	for conn, writeMu := range s.conns {
		writeMu.Lock()
		protocol.WriteClose(conn, time.Second)
		writeMu.Unlock()
		conn.Close()
	}
	s.mu.Unlock()
	s.cancel()

	// handlers see the canceled context; give them the same grace again to return
	if err != nil {
		select {
		case <-done:
		case <-time.After(timeout):
		}
	}
	return err
}
