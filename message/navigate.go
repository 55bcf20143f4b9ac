package message

import (
	"encoding/json"
	"fmt"
)

// Statement returns the nth statement of a query response.
// Statements are numbered in the order they appeared in the query text.
func (r *Response) Statement(n int) (*StatementResult, bool) {
	if r == nil || r.Result.Kind != BodyStatements || n < 0 || n >= len(r.Result.Statements) {
		return nil, false
	}
	return &r.Result.Statements[n], true
}

// Results returns the rows of the nth statement.
func (r *Response) Results(n int) ([]json.RawMessage, bool) {
	return r.AliasedResults(n, "")
}

// AliasedResults returns the array stored under alias in the nth statement.
// An empty alias means DefaultAlias.
//
// With a response that looks like this:
//
//	[
//	  { "status": "OK", "result": [{ "username": "John", "id": "1" }] },
//	  { "status": "OK", "friends": [{ "username": "Mark", "id": "2" }] }
//	]
//
// AliasedResults(1, "friends") returns [{ "username": "Mark", "id": "2" }].
func (r *Response) AliasedResults(n int, alias string) ([]json.RawMessage, bool) {
	st, ok := r.Statement(n)
	if !ok {
		return nil, false
	}
	if alias == "" || alias == DefaultAlias {
		if _, present := st.fields[DefaultAlias]; st.fields != nil && !present {
			return nil, false
		}
		return st.Result, true
	}
	raw, ok := st.fields[alias]
	if !ok {
		return nil, false
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

// FirstResult returns the first row of the nth statement.
func (r *Response) FirstResult(n int) (json.RawMessage, bool) {
	st, ok := r.Statement(n)
	if !ok {
		return nil, false
	}
	return st.First()
}

// Err returns the first failing statement, if any.
func (r *Response) Err() error {
	if r == nil {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	for i := range r.Result.Statements {
		if err := r.Result.Statements[i].err(i); err != nil {
			return err
		}
	}
	return nil
}

// StatementErr returns a *StatementError when the nth statement did not succeed.
// A missing statement is not an error.
func (r *Response) StatementErr(n int) error {
	st, ok := r.Statement(n)
	if !ok {
		return nil
	}
	return st.err(n)
}

// First returns the first row of the statement.
func (s *StatementResult) First() (json.RawMessage, bool) {
	if len(s.Result) == 0 {
		return nil, false
	}
	return s.Result[0], true
}

// All returns every row of the statement.
func (s *StatementResult) All() []json.RawMessage {
	return s.Result
}

// Key returns the value of key from each row. Rows that are not objects or
// do not contain key are left out.
func (s *StatementResult) Key(key string) []json.RawMessage {
	values := make([]json.RawMessage, 0, len(s.Result))
	for _, row := range s.Result {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(row, &obj); err != nil {
			continue
		}
		if v, ok := obj[key]; ok {
			values = append(values, v)
		}
	}
	return values
}

// OK reports whether the statement executed successfully.
func (s *StatementResult) OK() bool {
	return s.Status == StatusOK
}

// A statement without a status member carries no failure.
func (s *StatementResult) err(index int) error {
	if s.OK() || s.Status == "" {
		return nil
	}
	return &StatementError{Index: index, Status: s.Status, Detail: s.Detail}
}

// DecodeFirst decodes the first row of the nth statement into a T.
// It returns nil when the statement has no rows.
func DecodeFirst[T any](r *Response, n int) (*T, error) {
	raw, ok := r.FirstResult(n)
	if !ok {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode statement %d: %w", n, err)
	}
	return &v, nil
}

// DecodeAll decodes every given row into a T.
func DecodeAll[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
