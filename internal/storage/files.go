// Package storage persists dictations: one text artifact per dictation and
// an optional sqlite journal of everything saved.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultDir returns the default dictation directory under the user's documents.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Documents", "dictations")
}

// Files writes artifacts as <Dir>/<name>.txt.
type Files struct {
	Dir string
}

// Path resolves name to its artifact path. Separators are replaced so the
// result always lives directly inside Dir.
func (f Files) Path(name string) (string, error) {
	clean := sanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("invalid dictation name %q", name)
	}

	dir, err := filepath.Abs(f.Dir)
	if err != nil {
		return "", fmt.Errorf("abs(%s): %w", f.Dir, err)
	}
	path := filepath.Join(dir, clean+".txt")

	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != filepath.Base(path) {
		return "", fmt.Errorf("dictation name %q resolves outside %s", name, dir)
	}
	return path, nil
}

// maxSuffix bounds the "-N" suffixes tried when names collide.
const maxSuffix = 1000

// Write stores lines joined by newlines, creating Dir if absent. An existing
// artifact is never replaced: on a name collision the first free
// "<name>-N.txt" is used. The returned path is the one written.
func (f Files) Write(name string, lines []string) (string, error) {
	path, err := f.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	// the artifact only ever appears complete
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dictation-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.Join(lines, "\n")); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", path, err)
	}

	base := strings.TrimSuffix(path, ".txt")
	for n := 1; n <= maxSuffix; n++ {
		dst := path
		if n > 1 {
			dst = fmt.Sprintf("%s-%d.txt", base, n)
		}
		// link fails instead of replacing an existing file
		err := os.Link(tmp.Name(), dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("link %s: %w", dst, err)
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", path, maxSuffix)
}

// Newest returns the most recently modified artifact in Dir.
func (f Files) Newest() (string, time.Time, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return "", time.Time{}, err
	}

	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(f.Dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", time.Time{}, os.ErrNotExist
	}
	return best, bestMod, nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '-'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	return strings.TrimSpace(name)
}
