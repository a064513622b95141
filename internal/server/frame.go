package server

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// inFrame is a client request.
//
// Params may be a JSON object or a string holding one. Cancel ends the
// subscription opened by the earlier frame with the same id.
type inFrame struct {
	ID           json.RawMessage `json:"id"`
	URI          string          `json:"uri,omitempty"`
	Method       string          `json:"method,omitempty"`
	Category     string          `json:"category,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	Token        string          `json:"token,omitempty"`
	Subscription string          `json:"subscription,omitempty"`
	Cancel       bool            `json:"cancel,omitempty"`
}

// outFrame is a reply, or a notification when Subscription is set.
type outFrame struct {
	ID           json.RawMessage `json:"id,omitempty"`
	Subscription bool            `json:"subscription,omitempty"`
	Response     any             `json:"response"`
}

// frameKey identifies a frame id within a connection.
func (f *inFrame) frameKey() string {
	return string(bytes.TrimSpace(f.ID))
}

// params returns the raw params object. A JSON string is unwrapped and an
// absent value becomes an empty object.
func (f *inFrame) params() ([]byte, error) {
	raw := bytes.TrimSpace(f.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []byte("{}"), nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	return []byte(s), nil
}
