package nlu

import (
	"context"
	"fmt"
	log "log/slog"

	"dictation/internal/dictation"
)

// Sessions is the part of the dictation manager the dispatcher drives.
type Sessions interface {
	Start(ctx context.Context, id, name string) error
	Submit(ctx context.Context, id, text string) (bool, error)
	Stop(ctx context.Context, id string) (string, error)
	IsDictating(id string) bool
	Undo(ctx context.Context, id string) (string, error)
	Autocomplete(ctx context.Context, id, text string) (string, error)
	Last(ctx context.Context, id string) (dictation.Record, error)
}

var _ Sessions = (*dictation.Manager)(nil)

type Dispatcher struct {
	sessions Sessions
	nlu      Classifier

	undo     dictation.Keywords
	complete dictation.Keywords
}

func NewDispatcher(sessions Sessions, nlu Classifier) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		nlu:      nlu,
		undo:     dictation.NewKeywords(English.Undo...),
		complete: dictation.NewKeywords(English.Complete...),
	}
}

// Converse offers an utterance to a dictating session. Start, stop and read
// commands run; undo and autocomplete run only when spoken on their own.
// Everything else is captured. It reports false when the session is not
// dictating.
func (d *Dispatcher) Converse(ctx context.Context, session, utterance string) (bool, error) {
	if !d.sessions.IsDictating(session) {
		return false, nil
	}

	res, err := d.nlu.Classify(ctx, utterance)
	if err != nil {
		log.Warn("Classification failed, capturing", "session", session, "err", err)
	} else if d.interrupts(res, utterance) {
		log.Debug("Command while dictating", "session", session, "intent", res.Intent)
		return true, d.Run(ctx, session, res)
	}

	return d.sessions.Submit(ctx, session, utterance)
}

// interrupts reports whether res, classified while dictating, is a command
// rather than dictated text.
func (d *Dispatcher) interrupts(res Result, utterance string) bool {
	switch res.Intent {
	case IntentStart, IntentStop, IntentRead:
		return true
	case IntentUndo:
		return d.undo.Exact(utterance)
	case IntentAutocomplete:
		return d.complete.Exact(utterance)
	}
	return false
}

// Handle runs the full pipeline for an utterance: converse first, then the
// skill's intents. It reports false when the utterance belongs to someone
// else.
func (d *Dispatcher) Handle(ctx context.Context, session, utterance string) (bool, error) {
	if claimed, err := d.Converse(ctx, session, utterance); claimed {
		return true, err
	}

	res, err := d.nlu.Classify(ctx, utterance)
	if err != nil {
		return false, fmt.Errorf("classify: %w", err)
	}
	if res.Intent == IntentUnknown {
		return false, nil
	}
	return true, d.Run(ctx, session, res)
}

// Run executes an already classified intent.
func (d *Dispatcher) Run(ctx context.Context, session string, res Result) error {
	log.Info("Intent", "session", session, "intent", res.Intent, "entities", res.Entities)

	var err error
	switch res.Intent {
	case IntentStart:
		err = d.sessions.Start(ctx, session, res.Name())
	case IntentStop:
		_, err = d.sessions.Stop(ctx, session)
	case IntentRead:
		_, err = d.sessions.Last(ctx, session)
	case IntentUndo:
		_, err = d.sessions.Undo(ctx, session)
	case IntentAutocomplete:
		_, err = d.sessions.Autocomplete(ctx, session, res.Text())
	default:
		return fmt.Errorf("unknown intent %q", res.Intent)
	}
	return err
}
