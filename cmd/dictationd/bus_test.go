package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dictation/internal/dictation"
	"dictation/internal/nlu"
	"dictation/internal/storage"
	"dictation/pkg/protocol"
)

type fakeReplier struct {
	replies []*protocol.Message
}

func (f *fakeReplier) Reply(orig *protocol.Message, typ string, data map[string]any) error {
	f.replies = append(f.replies, orig.Forward(typ, data))
	return nil
}

func newHandler(t *testing.T) (*busHandler, *fakeReplier, string) {
	t.Helper()
	dir := t.TempDir()
	mgr := dictation.NewManager(nil, storage.NewArchive(dir, nil), dictation.Options{})
	r := &fakeReplier{}
	return &busHandler{
		bus:  r,
		mgr:  mgr,
		disp: nlu.NewDispatcher(mgr, nlu.NewKeywords(nlu.English)),
	}, r, dir
}

func msg(typ string, data map[string]any) *protocol.Message {
	m := protocol.NewMessage(typ, data)
	m.Context["session"] = map[string]any{"session_id": "s1"}
	return m
}

func TestBusConverseFlow(t *testing.T) {
	h, r, dir := newHandler(t)
	ctx := context.Background()

	h.Handle(ctx, msg(protocol.TypeStart, map[string]any{"name": "notes"}))
	if !h.mgr.IsDictating("s1") {
		t.Fatal("not dictating after dictation.start")
	}

	for _, u := range []string{"hello", "world", "stop"} {
		h.Handle(ctx, msg(protocol.TypeConverseRequest, map[string]any{"utterances": []any{u}}))
	}
	if len(r.replies) != 3 {
		t.Fatalf("replies = %d, want 3", len(r.replies))
	}
	for i, rep := range r.replies {
		if rep.Type != protocol.TypeConverseResponse || rep.Data["result"] != true {
			t.Errorf("reply %d = %v", i, rep)
		}
	}
	if h.mgr.IsDictating("s1") {
		t.Error("stop keyword did not end dictation")
	}

	b, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello\nworld" {
		t.Errorf("artifact = %q", b)
	}

	h.Handle(ctx, msg(protocol.TypeConverseRequest, map[string]any{"utterances": []any{"what time is it"}}))
	if last := r.replies[len(r.replies)-1]; last.Data["result"] != false {
		t.Errorf("idle converse claimed the utterance: %v", last)
	}
}

func TestBusUtteranceAndHostStop(t *testing.T) {
	h, _, dir := newHandler(t)
	ctx := context.Background()

	h.Handle(ctx, msg(protocol.TypeUtterance, map[string]any{"utterances": []any{"start dictation called memo"}}))
	h.Handle(ctx, msg(protocol.TypeUtterance, map[string]any{"utterances": []any{"first"}}))
	h.Handle(ctx, msg(protocol.TypeUtterance, map[string]any{"utterances": []any{"second"}}))
	h.Handle(ctx, msg(protocol.TypeUndo, nil))
	if got := h.mgr.Status("s1").Utterances; got != 1 {
		t.Fatalf("utterances = %d, want 1", got)
	}

	h.Handle(ctx, msg(protocol.TypeHostStop, nil))
	if h.mgr.IsDictating("s1") {
		t.Error("host stop did not end dictation")
	}
	b, err := os.ReadFile(filepath.Join(dir, "memo.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "first" {
		t.Errorf("artifact = %q", b)
	}

	h.Handle(ctx, msg(protocol.TypeStop, nil))
	if _, err := os.Stat(filepath.Join(dir, "memo.txt")); err != nil {
		t.Errorf("second stop disturbed the artifact: %v", err)
	}
}
