package domain

import (
	"bytes"
	"encoding/json"
)

// ChangePayload wraps a JSON snapshot of an audit entry's before/after state.
// An undefined payload encodes as JSON null, which is how creations carry no
// before state and deletions carry no after state.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload wrapper from raw JSON. The bytes are cloned
// to prevent callers from mutating shared state.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	if raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ChangePayload{}
	}
	return ChangePayload{defined: true, raw: cloneRawMessage(raw)}
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// UndefinedChangePayload returns a payload that encodes as null.
func UndefinedChangePayload() ChangePayload {
	return ChangePayload{}
}

// Defined reports whether the payload carries a value.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// Raw returns a cloned copy of the underlying JSON bytes, or nil when the
// payload is undefined.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// Decode unmarshals the payload into target. Undefined payloads leave target
// untouched and report false.
func (p ChangePayload) Decode(target any) (bool, error) {
	if !p.defined {
		return false, nil
	}
	if err := json.Unmarshal(p.raw, target); err != nil {
		return true, err
	}
	return true, nil
}

// MarshalJSON implements json.Marshaler.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if !p.defined {
		return []byte("null"), nil
	}
	return cloneRawMessage(p.raw), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	*p = NewChangePayload(data)
	return nil
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
