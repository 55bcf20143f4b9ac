// Package message defines the RPC message structures exchanged with a SurrealDB-style endpoint.
//
// Request is the outbound envelope. Response is the decoded form of an inbound frame:
// it carries the correlation id and a Body that is either empty, a plain string, or
// one StatementResult per statement of a (possibly multi-statement) query.
package message

import (
	"encoding/json"
	"fmt"
)

// Request carries a single outbound RPC call.
//
//	{"id": "<token>", "method": "<name>", "params": <json-value>}
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// BodyKind tells which shape the result member of a response had.
type BodyKind int

const (
	BodyNone       BodyKind = iota // null or missing result
	BodyText                       // plain string, e.g. a signin token
	BodyStatements                 // one entry per query statement
	BodyValue                      // any other JSON value, kept raw
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyText:
		return "text"
	case BodyStatements:
		return "statements"
	case BodyValue:
		return "value"
	}
	return fmt.Sprintf("BodyKind(%d)", int(k))
}

// Body is the result member of a response.
type Body struct {
	Kind       BodyKind
	Text       string
	Statements []StatementResult
	Raw        json.RawMessage // The undecoded result member, always set when present
}

// StatementResult is the outcome of one statement.
//
//	{"time": "1ms", "status": "OK", "result": [ ... ]}
type StatementResult struct {
	Time   string
	Status string
	Result []json.RawMessage // Rows returned by the statement
	Detail string            // Set when a failed statement reports its reason as a string

	fields map[string]json.RawMessage
}

// Response is the decoded form of one inbound frame.
type Response struct {
	ID     string
	Result Body
	Error  *RPCError // Non-nil when the endpoint rejected the call itself
}

// RPCError is an application-level failure reported by the endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatementError reports a statement whose status is not OK.
type StatementError struct {
	Index  int
	Status string
	Detail string
}

func (e *StatementError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("statement %d: status %s", e.Index, e.Status)
	}
	return fmt.Sprintf("statement %d: status %s: %s", e.Index, e.Status, e.Detail)
}
