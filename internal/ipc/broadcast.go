package ipc

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"dictation/internal/dialog"
	"dictation/internal/dictation"
)

const subscriberBuffer = 64

// Broadcaster turns host signals into events for every subscriber. Slow
// subscribers lose events instead of blocking the manager.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	now  func() time.Time
}

var _ dictation.Host = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{}), now: time.Now}
}

// Subscribe returns the event channel and a func that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Debug("Subscriber lagging, event dropped", "event", ev.Event)
		}
	}
}

func (b *Broadcaster) SetInputMode(_ context.Context, session string, mode dictation.InputMode) error {
	b.Publish(Event{Event: EventMode, Session: session, Mode: string(mode)})
	return nil
}

func (b *Broadcaster) Speak(_ context.Context, session, id string, data map[string]string) error {
	ev := Event{
		Session: session,
		Dialog:  id,
		Text:    dialog.Render(id, data),
		Name:    data["name"],
		Path:    data["path"],
	}
	switch id {
	case dictation.DialogStart, dictation.DialogRestarted:
		ev.Event = EventStarted
	case dictation.DialogStop:
		ev.Event = EventStopped
	case dictation.DialogSaved:
		ev.Event = EventSaved
	case dictation.DialogUndo:
		ev.Event = EventUndo
		ev.Text = data["text"]
	default:
		ev.Event = EventSpeak
	}
	b.Publish(ev)
	return nil
}

func (b *Broadcaster) DisplayText(_ context.Context, session, text string) error {
	b.Publish(Event{Event: EventUtterance, Session: session, Text: text})
	return nil
}

func (b *Broadcaster) AddContext(context.Context, string, string, string) error { return nil }

func (b *Broadcaster) RemoveContext(context.Context, string, string) error { return nil }
