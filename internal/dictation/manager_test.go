package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type hostCall struct {
	kind    string
	session string
	value   string
}

// recordingHost captures every signal the manager sends.
type recordingHost struct {
	mu    sync.Mutex
	calls []hostCall
}

func (h *recordingHost) add(kind, session, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hostCall{kind, session, value})
	return nil
}

func (h *recordingHost) SetInputMode(_ context.Context, session string, mode InputMode) error {
	return h.add("mode", session, string(mode))
}

func (h *recordingHost) Speak(_ context.Context, session, dialog string, _ map[string]string) error {
	return h.add("speak", session, dialog)
}

func (h *recordingHost) DisplayText(_ context.Context, session, text string) error {
	return h.add("display", session, text)
}

func (h *recordingHost) AddContext(_ context.Context, session, keyword, _ string) error {
	return h.add("context+", session, keyword)
}

func (h *recordingHost) RemoveContext(_ context.Context, session, keyword string) error {
	return h.add("context-", session, keyword)
}

func (h *recordingHost) values(kind string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.calls {
		if c.kind == kind {
			out = append(out, c.value)
		}
	}
	return out
}

// memStore keeps saved transcripts in memory.
type memStore struct {
	mu    sync.Mutex
	saved []Transcript
	fail  error
}

func (s *memStore) Save(_ context.Context, t Transcript) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.saved = append(s.saved, t)
	return "/dictations/" + t.Name + ".txt", nil
}

func (s *memStore) Last(_ context.Context, _ string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return Record{}, ErrNoDictation
	}
	t := s.saved[len(s.saved)-1]
	return Record{Name: t.Name, Text: t.Text(), Lines: len(t.Lines)}, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type fakeCompleter struct {
	suggestions []string
	err         error
}

func (c fakeCompleter) Complete(ctx context.Context, _ string) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.suggestions, ctx.Err()
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
}

func newTestManager(opts Options) (*Manager, *recordingHost, *memStore) {
	host := &recordingHost{}
	store := &memStore{}
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	return NewManager(host, store, opts), host, store
}

func mustSubmit(t *testing.T, m *Manager, id, text string) {
	t.Helper()
	claimed, err := m.Submit(context.Background(), id, text)
	if err != nil {
		t.Fatalf("Submit(%q): %v", text, err)
	}
	if !claimed {
		t.Fatalf("Submit(%q) not claimed", text)
	}
}

func TestStartSubmitStop(t *testing.T) {
	ctx := context.Background()
	m, host, store := newTestManager(Options{})

	if err := m.Start(ctx, "s1", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.IsDictating("s1") {
		t.Fatal("should be dictating after start")
	}
	mustSubmit(t, m, "s1", "hello")
	mustSubmit(t, m, "s1", "world")

	path, err := m.Stop(ctx, "s1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if path != "/dictations/2024-03-09_14-05-06.000-s1.txt" {
		t.Errorf("path = %q", path)
	}
	if store.count() != 1 {
		t.Fatalf("saved %d transcripts, want 1", store.count())
	}
	if got := store.saved[0].Text(); got != "hello\nworld" {
		t.Errorf("text = %q, want %q", got, "hello\nworld")
	}
	if m.IsDictating("s1") {
		t.Error("should not be dictating after stop")
	}

	modes := host.values("mode")
	if len(modes) != 2 || modes[0] != "continuous" || modes[1] != "wakeword" {
		t.Errorf("modes = %v, want [continuous wakeword]", modes)
	}
	displays := host.values("display")
	if len(displays) != 3 || displays[2] != "saved to "+path {
		t.Errorf("displays = %v", displays)
	}
	if ctxs := host.values("context-"); len(ctxs) != 1 || ctxs[0] != ContextKeyword {
		t.Errorf("context removals = %v", ctxs)
	}
}

func TestSubmitPreservesOrder(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{})

	m.Start(ctx, "s1", "notes")
	var want []string
	for i := 0; i < 50; i++ {
		u := fmt.Sprintf("line %d", i)
		want = append(want, u)
		mustSubmit(t, m, "s1", u)
	}
	if _, err := m.Stop(ctx, "s1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := store.saved[0].Lines
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	m, _, _ := newTestManager(Options{})

	claimed, err := m.Submit(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if claimed {
		t.Error("utterance claimed without an active dictation")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(Options{})

	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "one")
	m.Stop(ctx, "s1")

	if m.IsDictating("s1") {
		t.Error("still dictating after stop")
	}
	claimed, _ := m.Submit(ctx, "s1", "two")
	if claimed {
		t.Error("utterance claimed after stop")
	}
}

func TestStopKeywordEndsDictation(t *testing.T) {
	ctx := context.Background()
	m, host, store := newTestManager(Options{})

	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "test")
	mustSubmit(t, m, "s1", "test")
	mustSubmit(t, m, "s1", "test")
	mustSubmit(t, m, "s1", "Stop!")

	if store.count() != 1 {
		t.Fatalf("saved %d times, want exactly 1", store.count())
	}
	if got := store.saved[0].Lines; len(got) != 3 {
		t.Errorf("lines = %v, stop keyword must not be recorded", got)
	}
	if m.IsDictating("s1") {
		t.Error("still dictating after stop keyword")
	}

	// a second stop path finds the session idle and does not write again
	if _, err := m.Stop(ctx, "s1"); !errors.Is(err, ErrNotDictating) {
		t.Errorf("second stop err = %v, want ErrNotDictating", err)
	}
	if store.count() != 1 {
		t.Errorf("saved %d times after second stop", store.count())
	}
	claimed, _ := m.Submit(ctx, "s1", "test")
	if claimed {
		t.Error("utterance claimed after stop keyword")
	}

	speaks := host.values("speak")
	if speaks[len(speaks)-1] != DialogNotDictating {
		t.Errorf("last dialog = %q, want %q", speaks[len(speaks)-1], DialogNotDictating)
	}
}

func TestStopKeywordConcurrentWithExplicitStop(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{})
	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "a")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.Submit(ctx, "s1", "stop") }()
	go func() { defer wg.Done(); m.Stop(ctx, "s1") }()
	wg.Wait()

	if store.count() != 1 {
		t.Errorf("saved %d times, want exactly 1", store.count())
	}
}

func TestStopWithoutStart(t *testing.T) {
	m, host, store := newTestManager(Options{})

	_, err := m.Stop(context.Background(), "s1")
	if !errors.Is(err, ErrNotDictating) {
		t.Errorf("err = %v, want ErrNotDictating", err)
	}
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("err = %v, want ErrNoActiveSession", err)
	}
	if store.count() != 0 {
		t.Error("nothing should be persisted")
	}
	if speaks := host.values("speak"); len(speaks) != 1 || speaks[0] != DialogNotDictating {
		t.Errorf("speaks = %v", speaks)
	}
}

func TestIsDictatingUnknown(t *testing.T) {
	m, _, _ := newTestManager(Options{})
	if m.IsDictating("nobody") {
		t.Error("unknown session reported as dictating")
	}
}

func TestUndo(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{})

	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "a")
	mustSubmit(t, m, "s1", "b")
	removed, err := m.Undo(ctx, "s1")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if removed != "b" {
		t.Errorf("removed = %q, want %q", removed, "b")
	}
	mustSubmit(t, m, "s1", "c")
	m.Stop(ctx, "s1")

	if got := store.saved[0].Text(); got != "a\nc" {
		t.Errorf("text = %q, want %q", got, "a\nc")
	}
}

func TestUndoErrors(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(Options{})

	if _, err := m.Undo(ctx, "s1"); !errors.Is(err, ErrUndo) || !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("unknown session err = %v", err)
	}

	m.Start(ctx, "s1", "")
	if _, err := m.Undo(ctx, "s1"); !errors.Is(err, ErrUndo) {
		t.Errorf("empty buffer err = %v, want ErrUndo", err)
	}

	m.Stop(ctx, "s1")
	_, err := m.Undo(ctx, "s1")
	if !errors.Is(err, ErrUndo) || !errors.Is(err, ErrNotDictating) {
		t.Errorf("idle err = %v, want ErrUndo and ErrNotDictating", err)
	}
}

func TestRestartRejectKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	m, host, store := newTestManager(Options{RestartPolicy: RestartReject})

	m.Start(ctx, "s1", "first")
	mustSubmit(t, m, "s1", "kept")
	if err := m.Start(ctx, "s1", "second"); !errors.Is(err, ErrAlreadyDictating) {
		t.Fatalf("restart err = %v, want ErrAlreadyDictating", err)
	}
	mustSubmit(t, m, "s1", "more")
	m.Stop(ctx, "s1")

	if got := store.saved[0]; got.Name != "first" || got.Text() != "kept\nmore" {
		t.Errorf("saved = %+v", got)
	}
	speaks := host.values("speak")
	if speaks[1] != DialogAlreadyDictating {
		t.Errorf("dialogs = %v", speaks)
	}
}

// Under RestartReset a second start discards the running buffer without
// persisting it.
func TestRestartResetDiscardsBuffer(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{RestartPolicy: RestartReset})

	m.Start(ctx, "s1", "first")
	mustSubmit(t, m, "s1", "discarded")
	if err := m.Start(ctx, "s1", "second"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	mustSubmit(t, m, "s1", "kept")
	m.Stop(ctx, "s1")

	if store.count() != 1 {
		t.Fatalf("saved %d, want 1", store.count())
	}
	if got := store.saved[0]; got.Name != "second" || got.Text() != "kept" {
		t.Errorf("saved = %+v", got)
	}
}

func TestPersistenceFailureKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	m, host, store := newTestManager(Options{})
	m.Start(ctx, "s1", "notes")
	mustSubmit(t, m, "s1", "precious")

	store.fail = errors.New("disk full")
	_, err := m.Stop(ctx, "s1")
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if !errors.Is(err, ErrPersistence) || perr.Target != "notes" {
		t.Errorf("err = %v", err)
	}
	if !m.IsDictating("s1") {
		t.Fatal("failed save must leave the session dictating")
	}
	if speaks := host.values("speak"); speaks[len(speaks)-1] != DialogSaveFailed {
		t.Errorf("dialogs = %v", speaks)
	}

	store.fail = nil
	if _, err := m.Stop(ctx, "s1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := store.saved[0].Text(); got != "precious" {
		t.Errorf("text = %q", got)
	}
}

func TestAutocomplete(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{CompleteTimeout: time.Second})
	m.WithCompleter(fakeCompleter{suggestions: []string{" ", "the quick brown fox", "other"}})

	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "start")
	got, err := m.Autocomplete(ctx, "s1", "the quick")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if got != "the quick brown fox" {
		t.Errorf("suggestion = %q", got)
	}
	m.Stop(ctx, "s1")
	if text := store.saved[0].Text(); text != "start\nthe quick brown fox" {
		t.Errorf("text = %q", text)
	}
}

type textCompleter struct {
	mu   sync.Mutex
	text string
}

func (c *textCompleter) Complete(_ context.Context, text string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return []string{"and eggs"}, nil
}

func TestAutocompleteEmptyTextUsesLastUtterance(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(Options{})
	c := &textCompleter{}
	m.WithCompleter(c)

	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "buy milk")
	if _, err := m.Autocomplete(ctx, "s1", ""); err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if c.text != "buy milk" {
		t.Errorf("completer got %q, want the last utterance", c.text)
	}
	if got := m.Status("s1").Utterances; got != 2 {
		t.Errorf("utterances = %d, want 2", got)
	}
}

func TestAutocompleteFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(Options{})
	m.WithCompleter(fakeCompleter{err: errors.New("connection refused")})

	m.Start(ctx, "s1", "")
	mustSubmit(t, m, "s1", "a")
	_, err := m.Autocomplete(ctx, "s1", "a")
	var aerr *AutocompleteError
	if !errors.As(err, &aerr) || !errors.Is(err, ErrAutocompleteFailed) {
		t.Fatalf("err = %v, want AutocompleteError", err)
	}
	if st := m.Status("s1"); st.State != Dictating || st.Utterances != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestAutocompleteNotDictating(t *testing.T) {
	m, _, _ := newTestManager(Options{})
	m.WithCompleter(fakeCompleter{suggestions: []string{"x"}})
	if _, err := m.Autocomplete(context.Background(), "s1", "a"); !errors.Is(err, ErrNotDictating) {
		t.Errorf("err = %v, want ErrNotDictating", err)
	}
}

func TestStopAll(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{})
	m.Start(ctx, "a", "one")
	m.Start(ctx, "b", "two")
	m.Start(ctx, "c", "three")
	m.Stop(ctx, "c")

	if n := m.StopAll(ctx); n != 2 {
		t.Errorf("stopped %d, want 2", n)
	}
	if store.count() != 3 {
		t.Errorf("saved %d, want 3", store.count())
	}
}

func TestDefaultModeRestored(t *testing.T) {
	ctx := context.Background()
	m, host, _ := newTestManager(Options{DefaultMode: DefaultInputMode(false, true)})
	m.Start(ctx, "s1", "")
	m.Stop(ctx, "s1")

	modes := host.values("mode")
	if modes[len(modes)-1] != string(ModeHybrid) {
		t.Errorf("restored mode = %q, want hybrid", modes[len(modes)-1])
	}
}

func TestDefaultInputModePrecedence(t *testing.T) {
	tests := []struct {
		continuous, hybrid bool
		want               InputMode
	}{
		{true, true, ModeContinuous},
		{true, false, ModeContinuous},
		{false, true, ModeHybrid},
		{false, false, ModeWakeword},
	}
	for _, tt := range tests {
		if got := DefaultInputMode(tt.continuous, tt.hybrid); got != tt.want {
			t.Errorf("DefaultInputMode(%v, %v) = %q, want %q", tt.continuous, tt.hybrid, got, tt.want)
		}
	}
}

func TestEvictIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := fixedNow()
	m, _, _ := newTestManager(Options{Now: func() time.Time { return now }})

	m.Start(ctx, "idle", "")
	m.Stop(ctx, "idle")
	m.Start(ctx, "busy", "")

	now = now.Add(time.Hour)
	if n := m.Evict(now.Add(-time.Minute)); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if len(m.Sessions()) != 1 || !m.IsDictating("busy") {
		t.Errorf("sessions = %+v", m.Sessions())
	}
}

func TestLast(t *testing.T) {
	ctx := context.Background()
	m, host, _ := newTestManager(Options{})

	if _, err := m.Last(ctx, "s1"); !errors.Is(err, ErrNoDictation) {
		t.Errorf("err = %v, want ErrNoDictation", err)
	}

	m.Start(ctx, "s1", "shopping")
	mustSubmit(t, m, "s1", "milk")
	m.Stop(ctx, "s1")

	rec, err := m.Last(ctx, "s1")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if rec.Name != "shopping" || rec.Text != "milk" {
		t.Errorf("record = %+v", rec)
	}
	speaks := host.values("speak")
	if speaks[len(speaks)-1] != DialogRead {
		t.Errorf("dialogs = %v", speaks)
	}
}

func TestKeywordsMatch(t *testing.T) {
	k := NewKeywords("stop", "end dictation")
	tests := []struct {
		utterance string
		want      bool
	}{
		{"stop", true},
		{"Stop.", true},
		{"please stop now", true},
		{"End   dictation!", true},
		{"unstoppable", false},
		{"the end", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := k.Match(tt.utterance); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.utterance, got, tt.want)
		}
	}
}

func TestKeywordsExact(t *testing.T) {
	k := NewKeywords("scratch that", "undo")
	tests := []struct {
		utterance string
		want      bool
	}{
		{"Scratch that!", true},
		{"undo", true},
		{"please scratch that off the list", false},
		{"undo the changes", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := k.Exact(tt.utterance); got != tt.want {
			t.Errorf("Exact(%q) = %v, want %v", tt.utterance, got, tt.want)
		}
	}
}

func TestTargetName(t *testing.T) {
	now := fixedNow()
	tests := []struct {
		name, id, want string
	}{
		{"memo", "s1", "memo"},
		{"  memo  ", "s1", "memo"},
		{"", "s1", "2024-03-09_14-05-06.000-s1"},
		{"", "", "2024-03-09_14-05-06.000"},
		{"..", "s1", "2024-03-09_14-05-06.000-s1"},
		{" ./\\. ", "s1", "2024-03-09_14-05-06.000-s1"},
		{"../notes", "s1", "../notes"},
	}
	for _, tt := range tests {
		if got := TargetName(tt.name, tt.id, now); got != tt.want {
			t.Errorf("TargetName(%q, %q) = %q, want %q", tt.name, tt.id, got, tt.want)
		}
	}
}

func TestStartUnusableNameFallsBack(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(Options{})

	if err := m.Start(ctx, "s1", ".."); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSubmit(t, m, "s1", "hello")
	if _, err := m.Stop(ctx, "s1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.IsDictating("s1") {
		t.Error("session stuck dictating")
	}
	if got := store.saved[0].Name; got != "2024-03-09_14-05-06.000-s1" {
		t.Errorf("name = %q", got)
	}
}
