package dictation

import (
	"context"
	"errors"
)

// InputMode is the listener mode the host should switch its speech capture to.
type InputMode string

const (
	ModeContinuous InputMode = "continuous"
	ModeHybrid     InputMode = "hybrid"
	ModeWakeword   InputMode = "wakeword"
)

// DefaultInputMode picks the mode restored after dictation ends:
// continuous first if enabled, else hybrid if enabled, else wake word.
func DefaultInputMode(continuous, hybrid bool) InputMode {
	switch {
	case continuous:
		return ModeContinuous
	case hybrid:
		return ModeHybrid
	default:
		return ModeWakeword
	}
}

// Context keyword added while dictating so the host's intent matcher can
// prefer dictation intents ("stop dictation") over generic ones.
const (
	ContextKeyword = "DictationKeyword"
	ContextWord    = "dictation"
)

// Dialog ids spoken through Host.Speak.
const (
	DialogStart            = "start"
	DialogAlreadyDictating = "already_dictating"
	DialogRestarted        = "restarted"
	DialogStop             = "stop"
	DialogSaved            = "saved"
	DialogSaveFailed       = "save_failed"
	DialogNotDictating     = "not_dictating"
	DialogUndo             = "undo"
	DialogNothingToUndo    = "nothing_to_undo"
	DialogAutocomplete     = "autocomplete"
	DialogAutocompleteFail = "autocomplete_failed"
	DialogRead             = "dictation"
	DialogNoDictation      = "no_dictation"
)

// Host is the outbound side of the assistant the skill runs in. All calls
// are side-channel signalling: failures are logged by the manager and never
// change session state.
type Host interface {
	SetInputMode(ctx context.Context, session string, mode InputMode) error
	Speak(ctx context.Context, session, dialog string, data map[string]string) error
	DisplayText(ctx context.Context, session, text string) error
	AddContext(ctx context.Context, session, keyword, word string) error
	RemoveContext(ctx context.Context, session, keyword string) error
}

// NopHost ignores every signal. Embed it to implement only part of Host.
type NopHost struct{}

var _ Host = NopHost{}

func (NopHost) SetInputMode(context.Context, string, InputMode) error { return nil }

func (NopHost) Speak(context.Context, string, string, map[string]string) error { return nil }

func (NopHost) DisplayText(context.Context, string, string) error { return nil }

func (NopHost) AddContext(context.Context, string, string, string) error { return nil }

func (NopHost) RemoveContext(context.Context, string, string) error { return nil }

// Hosts fans every signal out to each host in order and joins the errors.
type Hosts []Host

var _ Host = Hosts(nil)

func (hs Hosts) each(fn func(Host) error) error {
	var errs []error
	for _, h := range hs {
		if err := fn(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (hs Hosts) SetInputMode(ctx context.Context, session string, mode InputMode) error {
	return hs.each(func(h Host) error { return h.SetInputMode(ctx, session, mode) })
}

func (hs Hosts) Speak(ctx context.Context, session, dialog string, data map[string]string) error {
	return hs.each(func(h Host) error { return h.Speak(ctx, session, dialog, data) })
}

func (hs Hosts) DisplayText(ctx context.Context, session, text string) error {
	return hs.each(func(h Host) error { return h.DisplayText(ctx, session, text) })
}

func (hs Hosts) AddContext(ctx context.Context, session, keyword, word string) error {
	return hs.each(func(h Host) error { return h.AddContext(ctx, session, keyword, word) })
}

func (hs Hosts) RemoveContext(ctx context.Context, session, keyword string) error {
	return hs.each(func(h Host) error { return h.RemoveContext(ctx, session, keyword) })
}
