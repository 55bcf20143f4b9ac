package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"surreal-rpc/message"
)

var (
	ErrMissingID = errors.New("codec: response has no id")
	ErrBadID     = errors.New("codec: response id is not a string")
)

// JSONCodec speaks the text protocol: one JSON object per frame.
type JSONCodec struct{}

// envelope mirrors an inbound frame before the result member is interpreted.
type envelope struct {
	ID     json.RawMessage   `json:"id"`
	Result json.RawMessage   `json:"result"`
	Error  *message.RPCError `json:"error"`
}

func (c *JSONCodec) EncodeRequest(req *message.Request) ([]byte, error) {
	if req.Method == "" {
		return nil, errors.New("codec: request has no method")
	}
	return json.Marshal(req)
}

// DecodeResponse parses a frame into a Response. The result member may be null,
// a string, an array of statement results, or any other JSON value.
func (c *JSONCodec) DecodeResponse(data []byte) (*message.Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	id, err := parseID(env.ID)
	if err != nil {
		return nil, err
	}
	body, err := decodeBody(env.Result)
	if err != nil {
		return nil, fmt.Errorf("codec: result of %s: %w", id, err)
	}
	return &message.Response{
		ID:     id,
		Result: body,
		Error:  env.Error,
	}, nil
}

func (c *JSONCodec) PeekID(data []byte) (string, bool) {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", false
	}
	id, err := parseID(head.ID)
	if err != nil {
		return "", false
	}
	return id, true
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrMissingID
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", ErrBadID
	}
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

func decodeBody(raw json.RawMessage) (message.Body, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return message.Body{Kind: message.BodyNone}, nil
	}
	body := message.Body{Raw: append(json.RawMessage(nil), trimmed...)}
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &body.Text); err != nil {
			return message.Body{}, err
		}
		body.Kind = message.BodyText
		return body, nil
	case '[':
		if statements, ok := message.ParseStatements(trimmed); ok {
			body.Kind = message.BodyStatements
			body.Statements = statements
			return body, nil
		}
	}
	body.Kind = message.BodyValue
	return body, nil
}
