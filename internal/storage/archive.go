package storage

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"

	"dictation/internal/dictation"
)

// Archive is the dictation.Store used by the daemon: the text artifact is
// authoritative, the journal is best effort.
type Archive struct {
	files   Files
	journal *Journal
}

var _ dictation.Store = (*Archive)(nil)

// NewArchive stores artifacts in dir. journal may be nil.
func NewArchive(dir string, journal *Journal) *Archive {
	return &Archive{files: Files{Dir: dir}, journal: journal}
}

// Dir returns the artifact directory.
func (a *Archive) Dir() string {
	return a.files.Dir
}

func (a *Archive) Save(ctx context.Context, t dictation.Transcript) (string, error) {
	path, err := a.files.Write(t.Name, t.Lines)
	if err != nil {
		return "", err
	}

	if a.journal != nil {
		if _, err := a.journal.Record(ctx, t, path); err != nil {
			log.Warn("Failed to journal dictation", "path", path, "err", err)
		}
	}
	return path, nil
}

// Last prefers the journal (session first, then any session) and falls back
// to the newest artifact on disk.
func (a *Archive) Last(ctx context.Context, sessionID string) (dictation.Record, error) {
	if a.journal != nil {
		rec, err := a.journal.Latest(ctx, sessionID)
		if errors.Is(err, dictation.ErrNoDictation) && sessionID != "" {
			rec, err = a.journal.Latest(ctx, "")
		}
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, dictation.ErrNoDictation) {
			log.Warn("Journal lookup failed, scanning directory", "err", err)
		}
	}

	path, mod, err := a.files.Newest()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dictation.Record{}, dictation.ErrNoDictation
		}
		return dictation.Record{}, fmt.Errorf("scan %s: %w", a.files.Dir, err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return dictation.Record{}, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(b)
	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}
	return dictation.Record{
		Name:    strings.TrimSuffix(filepath.Base(path), ".txt"),
		Path:    path,
		Text:    text,
		Lines:   lines,
		SavedAt: mod,
	}, nil
}
