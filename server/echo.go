package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"surreal-rpc/message"
)

// EchoService answers signin, use, query, ping and sleep in the shapes a
// SurrealDB endpoint uses. Each query statement echoes its bound parameters
// back as its single row.
type EchoService struct {
	// Users holds accepted credentials. A nil map accepts anyone.
	Users map[string]string

	mu       sync.Mutex
	ns, db   string
	sessions int
}

// Sessions returns the number of successful signins.
func (e *EchoService) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions
}

type credentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

func invalidParams(format string, args ...any) error {
	return &message.RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func (e *EchoService) Signin(ctx context.Context, params json.RawMessage) (any, error) {
	var args []credentials
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
		return nil, invalidParams("signin expects [{user, pass}]")
	}
	if e.Users != nil {
		if pass, ok := e.Users[args[0].User]; !ok || pass != args[0].Pass {
			return nil, &message.RPCError{Code: CodeInternal, Message: "There was a problem with authentication"}
		}
	}
	e.mu.Lock()
	e.sessions++
	e.mu.Unlock()
	return nil, nil
}

func (e *EchoService) Use(ctx context.Context, params json.RawMessage) (any, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
		return nil, invalidParams("use expects [namespace, database]")
	}
	e.mu.Lock()
	e.ns, e.db = args[0], args[1]
	e.mu.Unlock()
	return nil, nil
}

// Selected returns the namespace and database of the last use call.
func (e *EchoService) Selected() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ns, e.db
}

func (e *EchoService) Query(ctx context.Context, params json.RawMessage) (any, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, invalidParams("query expects [text, params]")
	}
	var text string
	if err := json.Unmarshal(args[0], &text); err != nil {
		return nil, invalidParams("query text must be a string")
	}
	var vars json.RawMessage
	if len(args) > 1 {
		vars = args[1]
	}

	start := time.Now()
	var results []message.StatementResult
	for _, stmt := range strings.Split(text, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(stmt), "THROW") {
			results = append(results, message.StatementResult{
				Time:   time.Since(start).String(),
				Status: "ERR",
				Detail: strings.TrimSpace(stmt[len("THROW"):]),
			})
			continue
		}
		var rows []any
		if isObject(vars) {
			rows = append(rows, vars)
		}
		st, err := message.NewStatementResult(time.Since(start).String(), rows...)
		if err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	return results, nil
}

func (e *EchoService) Ping(ctx context.Context, params json.RawMessage) (any, error) {
	return nil, nil
}

// Sleep waits for the given number of milliseconds and returns it.
func (e *EchoService) Sleep(ctx context.Context, params json.RawMessage) (any, error) {
	var args []int
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 || args[0] < 0 {
		return nil, invalidParams("sleep expects [milliseconds]")
	}
	select {
	case <-time.After(time.Duration(args[0]) * time.Millisecond):
		return args[0], nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &obj) == nil && obj != nil
}
