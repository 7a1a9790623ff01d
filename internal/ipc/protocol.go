// Package ipc is the daemon's local control socket: NDJSON commands and
// responses over a unix socket, plus a subscribable event stream.
package ipc

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultSession is used by commands that do not name a session.
const DefaultSession = "default"

func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "dictation.sock")
	}
	return filepath.Join(os.TempDir(), "dictation.sock")
}

// Command is sent from a client to the daemon.
type Command struct {
	Cmd     string `json:"cmd" jsonschema:"enum=start,enum=stop,enum=utterance,enum=undo,enum=complete,enum=status,enum=sessions,enum=read,enum=list,enum=subscribe"`
	Session string `json:"session,omitempty" jsonschema:"description=conversation id (default session when empty)"`
	Name    string `json:"name,omitempty" jsonschema:"description=dictation name for start"`
	Text    string `json:"text,omitempty" jsonschema:"description=utterance or text to complete"`
	Limit   int    `json:"limit,omitempty" jsonschema:"description=number of entries for list"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK        bool        `json:"ok"`
	Code      string      `json:"code,omitempty"`
	Error     string      `json:"error,omitempty"`
	Path      string      `json:"path,omitempty"`
	Dictating *bool       `json:"dictating,omitempty"`
	Claimed   *bool       `json:"claimed,omitempty"`
	Text      string      `json:"text,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Target    string      `json:"target,omitempty"`
	Sessions  []Session   `json:"sessions,omitempty"`
	Entries   []Dictation `json:"entries,omitempty"`
}

// Session describes one conversation known to the daemon.
type Session struct {
	ID         string    `json:"id"`
	Dictating  bool      `json:"dictating"`
	Target     string    `json:"target,omitempty"`
	Utterances int       `json:"utterances"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// Dictation describes one saved dictation.
type Dictation struct {
	ID      string    `json:"id"`
	Session string    `json:"session"`
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Lines   int       `json:"lines"`
	SavedAt time.Time `json:"savedAt"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event   string    `json:"event"`
	Session string    `json:"session,omitempty"`
	Text    string    `json:"text,omitempty"`
	Dialog  string    `json:"dialog,omitempty"`
	Mode    string    `json:"mode,omitempty"`
	Name    string    `json:"name,omitempty"`
	Path    string    `json:"path,omitempty"`
	Time    time.Time `json:"time"`
}

// Event names.
const (
	EventStarted   = "started"
	EventUtterance = "utterance"
	EventStopped   = "stopped"
	EventSaved     = "saved"
	EventUndo      = "undo"
	EventMode      = "mode"
	EventSpeak     = "speak"
)

// Error codes carried in Response.Code.
const (
	CodeBadRequest         = "bad_request"
	CodeUnknownCommand     = "unknown_command"
	CodeAlreadyDictating   = "already_dictating"
	CodeNoActiveSession    = "no_active_session"
	CodeNotDictating       = "not_dictating"
	CodeNothingToUndo      = "nothing_to_undo"
	CodePersistence        = "persistence_failed"
	CodeAutocompleteFailed = "autocomplete_failed"
	CodeNoDictation        = "no_dictation"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal"
)

func BoolPtr(b bool) *bool { return &b }

func IntPtr(n int) *int { return &n }
