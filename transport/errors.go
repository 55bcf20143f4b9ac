package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Send once the dispatcher has stopped.
	ErrClosed = errors.New("transport: connection closed")
	// ErrAbandoned resolves calls that were still pending when the dispatcher stopped.
	ErrAbandoned = errors.New("transport: call abandoned")
	// ErrDuplicateID rejects a registration whose id is already pending.
	ErrDuplicateID = errors.New("transport: duplicate correlation id")
	// ErrCanceled resolves a call that was de-registered by its caller.
	ErrCanceled = errors.New("transport: call canceled")
)

// EncodeError means the request could not be serialized. Nothing was sent.
type EncodeError struct {
	Method string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("transport: encode %s request: %v", e.Method, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError is delivered to a caller whose response arrived but could not be decoded.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("transport: decode response %s: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError means the frame could not be written to the connection.
type WriteError struct {
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("transport: write request %s: %v", e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
