// Package dictation tracks dictation sessions: whether capture is active for
// a conversation, the utterances captured so far, and the flush to storage
// when capture stops.
package dictation

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// RestartPolicy decides what Start does for a session that is already
// dictating.
type RestartPolicy string

const (
	// RestartReject keeps the running dictation and returns ErrAlreadyDictating.
	RestartReject RestartPolicy = "reject"
	// RestartReset discards the running buffer and starts over.
	RestartReset RestartPolicy = "reset"
)

// DefaultStopKeywords end a dictation when an utterance contains one of them.
var DefaultStopKeywords = []string{"stop", "end dictation", "finish dictation"}

// Options configures a Manager. Zero values pick the defaults.
type Options struct {
	StopKeywords    []string
	RestartPolicy   RestartPolicy
	DefaultMode     InputMode
	CompleteTimeout time.Duration
	Now             func() time.Time
}

// Manager owns the session map. Every exported method is safe for
// concurrent use; state transitions and persistence happen under one lock,
// host signalling happens after it is released.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	host      Host
	store     Store
	completer Completer

	stop    Keywords
	restart RestartPolicy
	mode    InputMode
	timeout time.Duration
	now     func() time.Time
}

func NewManager(host Host, store Store, opts Options) *Manager {
	if host == nil {
		host = NopHost{}
	}
	if opts.StopKeywords == nil {
		opts.StopKeywords = DefaultStopKeywords
	}
	if opts.RestartPolicy == "" {
		opts.RestartPolicy = RestartReject
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = ModeWakeword
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		sessions: make(map[string]*session),
		host:     host,
		store:    store,
		stop:     NewKeywords(opts.StopKeywords...),
		restart:  opts.RestartPolicy,
		mode:     opts.DefaultMode,
		timeout:  opts.CompleteTimeout,
		now:      opts.Now,
	}
}

// WithCompleter enables Autocomplete.
func (m *Manager) WithCompleter(c Completer) *Manager {
	m.completer = c
	return m
}

// Start begins dictation for id. An empty or unusable name defaults to the
// start time.
func (m *Manager) Start(ctx context.Context, id, name string) error {
	now := m.now()
	target := TargetName(name, id, now)
	if trimmed := strings.TrimSpace(name); trimmed != "" && trimmed != target {
		log.Warn("Unusable dictation name, using timestamp", "session", id, "name", name)
	}

	m.mu.Lock()
	prev, ok := m.sessions[id]
	restarted := ok && prev.state == Dictating
	if restarted && m.restart == RestartReject {
		m.mu.Unlock()
		log.Warn("Dictation already active", "session", id, "target", prev.target)
		m.signal("speak", m.host.Speak(ctx, id, DialogAlreadyDictating, map[string]string{"name": prev.target}))
		return ErrAlreadyDictating
	}
	m.sessions[id] = &session{
		id:        id,
		state:     Dictating,
		target:    target,
		startedAt: now,
		touched:   now,
	}
	m.mu.Unlock()

	if restarted {
		log.Warn("Dictation restarted, previous buffer discarded",
			"session", id, "discarded", len(prev.buffer), "target", prev.target)
		m.signal("speak", m.host.Speak(ctx, id, DialogRestarted, map[string]string{"name": target}))
	} else {
		m.signal("speak", m.host.Speak(ctx, id, DialogStart, map[string]string{"name": target}))
	}
	log.Info("Dictation started", "session", id, "target", target)

	m.signal("mode", m.host.SetInputMode(ctx, id, ModeContinuous))
	m.signal("context", m.host.AddContext(ctx, id, ContextKeyword, ContextWord))
	return nil
}

// Submit offers an utterance to the session. It reports false when the
// session is unknown or idle, in which case the host should route the
// utterance to its normal intent pipeline. While dictating every utterance
// is claimed; a stop keyword ends the dictation instead of being recorded.
func (m *Manager) Submit(ctx context.Context, id, text string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.state != Dictating {
		m.mu.Unlock()
		return false, nil
	}

	if m.stop.Match(text) {
		res, err := m.stopLocked(ctx, s)
		m.mu.Unlock()
		log.Debug("Stop keyword matched", "session", id, "utterance", text)
		if err != nil {
			m.stopFailed(ctx, id, err)
			return true, err
		}
		m.stopped(ctx, id, res)
		return true, nil
	}

	s.buffer = append(s.buffer, text)
	s.touched = m.now()
	n := len(s.buffer)
	m.mu.Unlock()

	log.Debug("Dictating", "session", id, "n", n, "utterance", text)
	m.signal("display", m.host.DisplayText(ctx, id, text))
	return true, nil
}

// Stop ends dictation, persists the buffer and returns the artifact path.
func (m *Manager) Stop(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.stopFailed(ctx, id, unknownSession(id))
		return "", unknownSession(id)
	}
	res, err := m.stopLocked(ctx, s)
	m.mu.Unlock()

	if err != nil {
		m.stopFailed(ctx, id, err)
		return "", err
	}
	m.stopped(ctx, id, res)
	return res.path, nil
}

// StopAll stops every dictating session, as a host-wide stop request does.
// It returns how many sessions were stopped.
func (m *Manager) StopAll(ctx context.Context) int {
	m.mu.Lock()
	var ids []string
	for id, s := range m.sessions {
		if s.state == Dictating {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)

	n := 0
	for _, id := range ids {
		if _, err := m.Stop(ctx, id); err != nil {
			log.Error("Failed to stop dictation", "session", id, "err", err)
			continue
		}
		n++
	}
	return n
}

type stopResult struct {
	target string
	path   string
	lines  int
}

// stopLocked flushes s. The caller holds m.mu, so no other stop path can
// observe the session as dictating once this returns successfully.
func (m *Manager) stopLocked(ctx context.Context, s *session) (stopResult, error) {
	if s.state != Dictating {
		return stopResult{}, fmt.Errorf("session %q: %w", s.id, ErrNotDictating)
	}
	if m.store == nil {
		return stopResult{}, &PersistenceError{Target: s.target, Err: errors.New("no store configured")}
	}

	now := m.now()
	t := Transcript{
		SessionID: s.id,
		Name:      s.target,
		Lines:     append([]string(nil), s.buffer...),
		StartedAt: s.startedAt,
		StoppedAt: now,
	}
	path, err := m.store.Save(ctx, t)
	if err != nil {
		return stopResult{}, &PersistenceError{Target: s.target, Err: err}
	}

	s.state = Idle
	s.buffer = nil
	s.touched = now
	return stopResult{target: s.target, path: path, lines: len(t.Lines)}, nil
}

func (m *Manager) stopped(ctx context.Context, id string, res stopResult) {
	log.Info("Dictation saved", "session", id, "path", res.path, "lines", res.lines)

	m.signal("mode", m.host.SetInputMode(ctx, id, m.mode))
	m.signal("context", m.host.RemoveContext(ctx, id, ContextKeyword))
	m.signal("speak", m.host.Speak(ctx, id, DialogStop, nil))
	m.signal("display", m.host.DisplayText(ctx, id, "saved to "+res.path))
	m.signal("speak", m.host.Speak(ctx, id, DialogSaved, map[string]string{
		"name": res.target,
		"path": res.path,
	}))
}

func (m *Manager) stopFailed(ctx context.Context, id string, err error) {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		log.Error("Failed to save dictation", "session", id, "target", perr.Target, "err", perr.Err)
		m.signal("speak", m.host.Speak(ctx, id, DialogSaveFailed, map[string]string{"name": perr.Target}))
		return
	}
	log.Info("Stop requested while not dictating", "session", id)
	m.signal("speak", m.host.Speak(ctx, id, DialogNotDictating, nil))
}

// IsDictating reports whether id is capturing. Unknown ids are not.
func (m *Manager) IsDictating(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return ok && s.state == Dictating
}

// Undo pops the most recently captured utterance and returns it.
func (m *Manager) Undo(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	var err error
	switch {
	case !ok:
		err = fmt.Errorf("%w: %w", ErrUndo, unknownSession(id))
	case s.state != Dictating:
		err = fmt.Errorf("%w: %w", ErrUndo, ErrNotDictating)
	case len(s.buffer) == 0:
		err = ErrUndo
	}
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, ErrNotDictating) {
			m.signal("speak", m.host.Speak(ctx, id, DialogNotDictating, nil))
		} else {
			m.signal("speak", m.host.Speak(ctx, id, DialogNothingToUndo, nil))
		}
		return "", err
	}

	last := s.buffer[len(s.buffer)-1]
	s.buffer = s.buffer[:len(s.buffer)-1]
	s.touched = m.now()
	m.mu.Unlock()

	log.Info("Removed last utterance", "session", id, "utterance", last)
	m.signal("speak", m.host.Speak(ctx, id, DialogUndo, map[string]string{"text": last}))
	return last, nil
}

// Autocomplete asks the completer for a continuation of text and appends the
// first suggestion. An empty text continues the last captured utterance.
// Completion failures leave the session untouched.
func (m *Manager) Autocomplete(ctx context.Context, id, text string) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.state != Dictating {
		m.mu.Unlock()
		m.signal("speak", m.host.Speak(ctx, id, DialogNotDictating, nil))
		if !ok {
			return "", unknownSession(id)
		}
		return "", ErrNotDictating
	}
	if strings.TrimSpace(text) == "" && len(s.buffer) > 0 {
		text = s.buffer[len(s.buffer)-1]
	}
	m.mu.Unlock()

	suggestion, err := m.complete(ctx, text)
	if err != nil {
		log.Warn("Autocomplete failed", "session", id, "text", text, "err", err)
		m.signal("speak", m.host.Speak(ctx, id, DialogAutocompleteFail, nil))
		return "", &AutocompleteError{Text: text, Err: err}
	}

	m.mu.Lock()
	// the session may have been stopped or replaced while the backend answered
	if cur := m.sessions[id]; cur != s || s.state != Dictating {
		m.mu.Unlock()
		return "", ErrNotDictating
	}
	s.buffer = append(s.buffer, suggestion)
	s.touched = m.now()
	m.mu.Unlock()

	log.Info("Autocompleted", "session", id, "text", text, "suggestion", suggestion)
	m.signal("display", m.host.DisplayText(ctx, id, suggestion))
	m.signal("speak", m.host.Speak(ctx, id, DialogAutocomplete, map[string]string{"text": suggestion}))
	return suggestion, nil
}

func (m *Manager) complete(ctx context.Context, text string) (string, error) {
	if m.completer == nil {
		return "", errors.New("no completion backend configured")
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	suggestions, err := m.completer.Complete(ctx, text)
	if err != nil {
		return "", err
	}
	for _, s := range suggestions {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return "", errors.New("no suggestions")
}

// Last returns the most recently saved dictation for id and speaks it.
func (m *Manager) Last(ctx context.Context, id string) (Record, error) {
	if m.store == nil {
		return Record{}, ErrNoDictation
	}
	rec, err := m.store.Last(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoDictation) {
			m.signal("speak", m.host.Speak(ctx, id, DialogNoDictation, nil))
		}
		return Record{}, err
	}
	m.signal("speak", m.host.Speak(ctx, id, DialogRead, map[string]string{
		"name": rec.Name,
		"text": rec.Text,
	}))
	return rec, nil
}

// Status returns a snapshot of id. Unknown ids report Idle.
func (m *Manager) Status(id string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.snapshot()
	}
	return Snapshot{SessionID: id, State: Idle}
}

// Sessions lists all known sessions ordered by id.
func (m *Manager) Sessions() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Evict forgets idle sessions not touched since cutoff.
func (m *Manager) Evict(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.state == Idle && s.touched.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) signal(what string, err error) {
	if err != nil {
		log.Warn("Host signal failed", "signal", what, "err", err)
	}
}
