package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outbound message types.
const (
	TypeStateSet         = "recognizer_loop:state.set"
	TypeSpeak            = "speak"
	TypeShowText         = "gui.show_text"
	TypeContextAdd       = "context.add"
	TypeContextRemove    = "context.remove"
	TypeConverseResponse = "skill.converse.response"
)

// Inbound message types.
const (
	TypeStart           = "dictation.start"
	TypeStop            = "dictation.stop"
	TypeUndo            = "dictation.undo"
	TypeAutocomplete    = "dictation.autocomplete"
	TypeRead            = "dictation.read"
	TypeConverseRequest = "skill.converse.request"
	TypeUtterance       = "recognizer_loop:utterance"
	TypeHostStop        = "mycroft.stop"
)

// Message is one frame on the host bus.
type Message struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Context map[string]any `json:"context,omitempty"`
}

func NewMessage(typ string, data map[string]any) *Message {
	if data == nil {
		data = map[string]any{}
	}
	return &Message{Type: typ, Data: data, Context: map[string]any{}}
}

func Parse(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if strings.TrimSpace(m.Type) == "" {
		return nil, errors.New("message without type")
	}
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	return &m, nil
}

func (m *Message) String() string {
	b, err := json.Marshal(m)
	if err != nil {
		return m.Type
	}
	return string(b)
}

// Str returns data[key] when it is a string.
func (m *Message) Str(key string) string {
	s, _ := m.Data[key].(string)
	return s
}

// Strings returns data[key] as a string list, accepting a bare string too.
func (m *Message) Strings(key string) []string {
	switch v := m.Data[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Session resolves the conversation the message belongs to: data.session,
// then context.session.session_id, then context.session as a string.
func (m *Message) Session() string {
	if s := m.Str("session"); s != "" {
		return s
	}
	switch v := m.Context["session"].(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["session_id"].(string); ok {
			return s
		}
	}
	return ""
}

// Forward builds a message of typ that carries m's context.
func (m *Message) Forward(typ string, data map[string]any) *Message {
	out := NewMessage(typ, data)
	for k, v := range m.Context {
		out.Context[k] = v
	}
	return out
}

// addressedTo reports whether the message is meant for name. Messages
// without a destination are broadcast.
func (m *Message) addressedTo(name string) bool {
	switch d := m.Context["destination"].(type) {
	case nil:
		return true
	case string:
		return d == "" || d == name
	case []any:
		if len(d) == 0 {
			return true
		}
		for _, x := range d {
			if s, _ := x.(string); s == name {
				return true
			}
		}
		return false
	}
	return true
}
