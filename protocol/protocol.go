// Package protocol defines the JSON frames exchanged over the notification
// websocket. Every frame is {"type": ..., "data": ..., "timestamp": ...}.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Reserved frame types.
const (
	TypeConnected    = "connected"
	TypeAuth         = "auth"
	TypeAuthSuccess  = "auth_success"
	TypeNotification = "notification"
	TypeError        = "error"
)

type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuthData is sent by the client as the first frame after connecting.
type AuthData struct {
	Token string `json:"token"`
}

type AuthSuccessData struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

type ConnectedData struct {
	Message string `json:"message"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// New wraps data into an envelope of the given type.
func New(typ string, data interface{}) (Envelope, error) {
	env := Envelope{Type: typ, Timestamp: time.Now().UTC()}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = raw
	return env, nil
}

// Encode is New followed by json.Marshal.
func Encode(typ string, data interface{}) ([]byte, error) {
	env, err := New(typ, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses one frame.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

// Unmarshal decodes the envelope's data into v.
func (e Envelope) Unmarshal(v interface{}) error {
	if len(e.Data) == 0 {
		return errors.New("frame has no data")
	}
	return json.Unmarshal(e.Data, v)
}
