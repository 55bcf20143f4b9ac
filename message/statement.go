package message

import (
	"bytes"
	"encoding/json"
	"errors"
)

// StatusOK is the status of a statement that executed successfully.
const StatusOK = "OK"

// DefaultAlias is the member a statement stores its rows under unless the query renamed it.
const DefaultAlias = "result"

var errNotStatement = errors.New("message: not a statement result")

// NewStatementResult builds an OK statement holding the given rows.
func NewStatementResult(time string, rows ...any) (StatementResult, error) {
	st := StatementResult{Time: time, Status: StatusOK}
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return StatementResult{}, err
		}
		st.Result = append(st.Result, raw)
	}
	return st, nil
}

// UnmarshalJSON accepts a statement object whose result member is either an array of
// rows or a string describing why the statement failed. Objects without a status
// member are rejected so that arbitrary arrays are not mistaken for statements.
func (s *StatementResult) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if _, ok := fields["status"]; !ok {
		return errNotStatement
	}
	return s.fill(fields)
}

// ParseStatements reads a result array as a statement list. Every element must be
// an object and at least one must carry a status member; elements without one
// decode with an empty Status, e.g. the aliased entry in
//
//	[{"status":"OK","result":[..]},{"friends":[..]}]
func ParseStatements(raw json.RawMessage) ([]StatementResult, bool) {
	var objects []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &objects); err != nil || len(objects) == 0 {
		return nil, false
	}
	withStatus := false
	for _, fields := range objects {
		if fields == nil {
			return nil, false
		}
		if _, ok := fields["status"]; ok {
			withStatus = true
		}
	}
	if !withStatus {
		return nil, false
	}
	out := make([]StatementResult, len(objects))
	for i, fields := range objects {
		if err := out[i].fill(fields); err != nil {
			return nil, false
		}
	}
	return out, true
}

func (s *StatementResult) fill(fields map[string]json.RawMessage) error {
	if status, ok := fields["status"]; ok {
		if err := json.Unmarshal(status, &s.Status); err != nil {
			return err
		}
	}
	if t, ok := fields["time"]; ok {
		if err := json.Unmarshal(t, &s.Time); err != nil {
			return err
		}
	}
	if d, ok := fields["detail"]; ok {
		if err := json.Unmarshal(d, &s.Detail); err != nil {
			return err
		}
	}
	s.Result = nil
	if r, ok := fields[DefaultAlias]; ok {
		rows, text, err := splitResult(r)
		if err != nil {
			return err
		}
		s.Result = rows
		if text != "" {
			s.Detail = text
		}
	}
	s.fields = fields
	return nil
}

// MarshalJSON writes the statement in wire form.
func (s StatementResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Time   string            `json:"time"`
		Status string            `json:"status"`
		Result []json.RawMessage `json:"result"`
		Detail string            `json:"detail,omitempty"`
	}{s.Time, s.Status, s.Result, s.Detail}
	if out.Result == nil {
		out.Result = []json.RawMessage{}
	}
	return json.Marshal(out)
}

// splitResult interprets a result member as rows, a text detail, or null.
func splitResult(raw json.RawMessage) ([]json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", nil
	}
	switch trimmed[0] {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, "", err
		}
		return rows, "", nil
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, "", err
		}
		return nil, text, nil
	}
	// a single row
	return []json.RawMessage{trimmed}, "", nil
}
