package dictation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDictating is returned by stop, undo and autocomplete while the
	// session is idle.
	ErrNotDictating = errors.New("not dictating")

	// ErrAlreadyDictating is returned by Start under RestartReject.
	ErrAlreadyDictating = errors.New("already dictating")

	// ErrNoActiveSession marks operations on a session id the manager has
	// never seen (or has evicted). Stop and Undo wrap it together with
	// ErrNotDictating.
	ErrNoActiveSession = errors.New("no active session")

	// ErrUndo is returned when there is no utterance to pop.
	ErrUndo = errors.New("nothing to undo")

	ErrPersistence        = errors.New("persist dictation")
	ErrAutocompleteFailed = errors.New("autocomplete failed")

	// ErrNoDictation is returned by Store.Last when nothing was saved yet.
	ErrNoDictation = errors.New("no saved dictation")
)

// PersistenceError wraps a failed artifact write. The session keeps
// dictating and its buffer is retained so the stop can be retried.
type PersistenceError struct {
	Target string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist dictation %q: %v", e.Target, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// AutocompleteError wraps a failure of the completion backend. Session
// state is never changed by a failed completion.
type AutocompleteError struct {
	Text string
	Err  error
}

func (e *AutocompleteError) Error() string {
	return fmt.Sprintf("autocomplete %q: %v", e.Text, e.Err)
}

func (e *AutocompleteError) Unwrap() []error {
	return []error{ErrAutocompleteFailed, e.Err}
}

func unknownSession(id string) error {
	return fmt.Errorf("session %q: %w: %w", id, ErrNoActiveSession, ErrNotDictating)
}
