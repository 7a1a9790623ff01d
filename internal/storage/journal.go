package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dictation/internal/dictation"
)

const schema = `
CREATE TABLE IF NOT EXISTS dictations (
	id TEXT PRIMARY KEY,
	sessionId TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	text TEXT NOT NULL,
	lines INTEGER NOT NULL,
	startedAt REAL NOT NULL,
	savedAt REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS dictations_session ON dictations(sessionId, savedAt);
`

// Journal records every saved dictation in SQLite.
type Journal struct {
	db *sql.DB
}

// DefaultJournalPath returns the default journal location.
func DefaultJournalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dictation", "journal.sqlite")
}

// OpenJournal opens (creating if needed) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores t saved at path and returns the new record.
func (j *Journal) Record(ctx context.Context, t dictation.Transcript, path string) (dictation.Record, error) {
	rec := dictation.Record{
		ID:        uuid.NewString(),
		SessionID: t.SessionID,
		Name:      t.Name,
		Path:      path,
		Text:      t.Text(),
		Lines:     len(t.Lines),
		SavedAt:   t.StoppedAt,
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO dictations (id, sessionId, name, path, text, lines, startedAt, savedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.Name, rec.Path, rec.Text, rec.Lines,
		unixFromTime(t.StartedAt), unixFromTime(t.StoppedAt))
	if err != nil {
		return dictation.Record{}, fmt.Errorf("insert dictation: %w", err)
	}
	return rec, nil
}

// Latest returns the most recent dictation of a session, or of any session
// when sessionID is empty. It returns dictation.ErrNoDictation when none exist.
func (j *Journal) Latest(ctx context.Context, sessionID string) (dictation.Record, error) {
	query := `
		SELECT id, sessionId, name, path, text, lines, savedAt
		FROM dictations
		WHERE sessionId = ?
		ORDER BY savedAt DESC, rowid DESC
		LIMIT 1
	`
	args := []any{sessionID}
	if sessionID == "" {
		query = `
			SELECT id, sessionId, name, path, text, lines, savedAt
			FROM dictations
			ORDER BY savedAt DESC, rowid DESC
			LIMIT 1
		`
		args = nil
	}

	rec, err := scanRecord(j.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return dictation.Record{}, dictation.ErrNoDictation
	}
	return rec, err
}

// List returns up to limit dictations, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]dictation.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, sessionId, name, path, text, lines, savedAt
		FROM dictations
		ORDER BY savedAt DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dictations: %w", err)
	}
	defer rows.Close()

	var out []dictation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (dictation.Record, error) {
	var (
		rec     dictation.Record
		savedAt float64
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Name, &rec.Path,
		&rec.Text, &rec.Lines, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dictation.Record{}, err
		}
		return dictation.Record{}, fmt.Errorf("scan dictation: %w", err)
	}
	rec.SavedAt = timeFromUnix(savedAt)
	return rec, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
