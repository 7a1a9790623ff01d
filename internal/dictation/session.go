package dictation

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// State of a dictation session.
type State int

const (
	Idle State = iota
	Dictating
)

func (s State) String() string {
	if s == Dictating {
		return "dictating"
	}
	return "idle"
}

// TimestampLayout names dictations started without an explicit name. The
// session id is appended so concurrent sessions never share a name.
const TimestampLayout = "2006-01-02_15-04-05.000"

// TargetName picks the artifact name for a dictation of session id started
// at now. Names with nothing printable besides dots and separators fall back
// to the timestamp.
func TargetName(name, id string, now time.Time) string {
	name = strings.TrimSpace(name)
	usable := strings.IndexFunc(name, func(r rune) bool {
		return r != '.' && r != '/' && r != '\\' && !unicode.IsSpace(r) && unicode.IsPrint(r)
	}) >= 0
	if usable {
		return name
	}
	ts := now.Format(TimestampLayout)
	if id == "" {
		return ts
	}
	return ts + "-" + id
}

// Transcript is a flushed buffer handed to the Store.
type Transcript struct {
	SessionID string
	Name      string
	Lines     []string
	StartedAt time.Time
	StoppedAt time.Time
}

// Text joins the lines the way the artifact stores them.
func (t Transcript) Text() string {
	return strings.Join(t.Lines, "\n")
}

// Record describes a saved dictation.
type Record struct {
	ID        string
	SessionID string
	Name      string
	Path      string
	Text      string
	Lines     int
	SavedAt   time.Time
}

// Store persists transcripts. Save returns the artifact location.
type Store interface {
	Save(ctx context.Context, t Transcript) (string, error)
	Last(ctx context.Context, sessionID string) (Record, error)
}

// Completer proposes continuations for a partial utterance.
type Completer interface {
	Complete(ctx context.Context, text string) ([]string, error)
}

// Snapshot is a read-only view of one session.
type Snapshot struct {
	SessionID  string
	State      State
	Target     string
	Utterances int
	StartedAt  time.Time
}

type session struct {
	id        string
	state     State
	target    string
	buffer    []string
	startedAt time.Time
	touched   time.Time
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		SessionID:  s.id,
		State:      s.state,
		Target:     s.target,
		Utterances: len(s.buffer),
		StartedAt:  s.startedAt,
	}
}

// Keywords matches utterances against a phrase set. A phrase matches when
// it appears in the utterance on word boundaries, ignoring case and
// punctuation.
type Keywords struct {
	phrases []string
}

func NewKeywords(phrases ...string) Keywords {
	var k Keywords
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			k.phrases = append(k.phrases, n)
		}
	}
	return k
}

func (k Keywords) Match(utterance string) bool {
	u := " " + Normalize(utterance) + " "
	for _, p := range k.phrases {
		if strings.Contains(u, " "+p+" ") {
			return true
		}
	}
	return false
}

// Exact reports whether the whole utterance is one of the phrases.
func (k Keywords) Exact(utterance string) bool {
	u := Normalize(utterance)
	for _, p := range k.phrases {
		if u == p {
			return true
		}
	}
	return false
}

func (k Keywords) Empty() bool { return len(k.phrases) == 0 }

// Normalize lowercases s, turns punctuation into spaces and collapses runs
// of whitespace.
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
