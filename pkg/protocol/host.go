package protocol

import (
	"context"

	"dictation/internal/dialog"
	"dictation/internal/dictation"
)

// Emitter sends a frame on the bus.
type Emitter interface {
	Emit(msg *Message) error
}

// BusHost signals the assistant over the bus.
type BusHost struct {
	bus Emitter
}

var _ dictation.Host = (*BusHost)(nil)

func NewBusHost(bus Emitter) *BusHost {
	return &BusHost{bus: bus}
}

func (h *BusHost) emit(session, typ string, data map[string]any) error {
	msg := NewMessage(typ, data)
	if session != "" {
		msg.Context["session"] = map[string]any{"session_id": session}
	}
	return h.bus.Emit(msg)
}

func (h *BusHost) SetInputMode(_ context.Context, session string, mode dictation.InputMode) error {
	return h.emit(session, TypeStateSet, map[string]any{"mode": string(mode)})
}

func (h *BusHost) Speak(_ context.Context, session, id string, data map[string]string) error {
	meta := map[string]any{"dialog": id}
	if len(data) > 0 {
		meta["data"] = data
	}
	return h.emit(session, TypeSpeak, map[string]any{
		"utterance":       dialog.Render(id, data),
		"expect_response": false,
		"meta":            meta,
	})
}

func (h *BusHost) DisplayText(_ context.Context, session, text string) error {
	return h.emit(session, TypeShowText, map[string]any{"text": text})
}

func (h *BusHost) AddContext(_ context.Context, session, keyword, word string) error {
	return h.emit(session, TypeContextAdd, map[string]any{"keyword": keyword, "word": word})
}

func (h *BusHost) RemoveContext(_ context.Context, session, keyword string) error {
	return h.emit(session, TypeContextRemove, map[string]any{"keyword": keyword})
}
