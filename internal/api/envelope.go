// ABOUTME: Decodes list responses that are either a bare array or wrapped in a field
// ABOUTME: e.g. [...] and {"messages": [...]} yield the same slice

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedShape reports a list response that is neither an array nor
// an object holding the expected field.
var ErrUnexpectedShape = errors.New("unexpected response shape")

func decodeList[T any](data []byte, field string) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, nil
	}

	switch data[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decoding list: %w", err)
		}
		return out, nil

	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("decoding %q envelope: %w", field, err)
		}
		raw, ok := wrapper[field]
		if !ok {
			return nil, fmt.Errorf("%w: object without %q", ErrUnexpectedShape, field)
		}
		return decodeList[T](raw, field)
	}

	return nil, fmt.Errorf("%w: %.20q", ErrUnexpectedShape, data)
}
