// Package protocol is the boundary to the message-framed duplex connection.
//
// The correlation engine only needs three things from a connection: send one
// message, receive the next message, and learn that the stream ended. Conn captures
// exactly that, and Dial provides it over a WebSocket (ws:// or wss://).
//
// Frame format on the wire is one JSON object per text message:
//
//	client → server   {"id": "<token>", "method": "<name>", "params": <json-value>}
//	server → client   {"id": "<token>", "result": <json-value>}
package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Message types, the same values gorilla/websocket uses.
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
	CloseMessage  = websocket.CloseMessage
	PingMessage   = websocket.PingMessage
	PongMessage   = websocket.PongMessage
)

// Conn is a full-duplex, message-framed connection.
// ReadMessage must only be called from one goroutine. Writes must be serialized by the caller.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Settings struct {
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration // Zero disables pings
	ReadLimit         int64         // Maximum inbound message size, zero means unlimited
	TLSConfig         *tls.Config
	Header            http.Header
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ReadLimit:         32 << 20,
	}
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string, settings *Settings) (Conn, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: settings.HandshakeTimeout,
		TLSClientConfig:  settings.TLSConfig,
	}

	ws, resp, err := dialer.DialContext(ctx, url, settings.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if settings.ReadLimit > 0 {
		ws.SetReadLimit(settings.ReadLimit)
	}
	return ws, nil
}

// WriteClose sends a normal-closure close frame. The caller still owns closing conn.
func WriteClose(conn Conn, timeout time.Duration) error {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := conn.WriteMessage(CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// IsExpectedClose reports whether err is how a peer normally ends a session.
func IsExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
