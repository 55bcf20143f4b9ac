package client

import (
	"context"
	"encoding/json"

	"surreal-rpc/message"
)

func firstStatement(ctx context.Context, c *Client, text string, params any) (*message.StatementResult, error) {
	resp, err := c.Query(ctx, text, params)
	if err != nil {
		return nil, err
	}
	if err := resp.StatementErr(0); err != nil {
		return nil, err
	}
	st, _ := resp.Statement(0)
	return st, nil
}

func decodeOne[T any](rows []json.RawMessage) (*T, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out, err := message.DecodeAll[T](rows[:1])
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// FindOne runs a query and decodes the first row of its first statement.
// It returns nil when there is no such row.
func FindOne[T any](ctx context.Context, c *Client, text string, params any) (*T, error) {
	st, err := firstStatement(ctx, c, text, params)
	if err != nil || st == nil {
		return nil, err
	}
	return decodeOne[T](st.All())
}

// FindMany runs a query and decodes every row of its first statement.
func FindMany[T any](ctx context.Context, c *Client, text string, params any) ([]T, error) {
	st, err := firstStatement(ctx, c, text, params)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return []T{}, nil
	}
	return message.DecodeAll[T](st.All())
}

// FindOneKey decodes the value of key from the first row of the first statement
// that has it. It returns nil when no row has key.
func FindOneKey[T any](ctx context.Context, c *Client, key, text string, params any) (*T, error) {
	st, err := firstStatement(ctx, c, text, params)
	if err != nil || st == nil {
		return nil, err
	}
	return decodeOne[T](st.Key(key))
}

// FindManyKey decodes the value of key from every row of the first statement.
// Rows without key are left out.
func FindManyKey[T any](ctx context.Context, c *Client, key, text string, params any) ([]T, error) {
	st, err := firstStatement(ctx, c, text, params)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return []T{}, nil
	}
	return message.DecodeAll[T](st.Key(key))
}
