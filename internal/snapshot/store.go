package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNoSnapshot is returned by Latest when nothing was saved for a session.
var ErrNoSnapshot = errors.New("no snapshot recorded")

// Entry is one autosaved copy of the answers.
type Entry struct {
	SessionID string
	Answers   map[int]int
	SavedAt   time.Time
}

// Store keeps local crash-recovery copies of the answer map in SQLite. The
// exam session only ever writes to it; `proctor snapshot` reads it back.
type Store struct {
	db        *sql.DB
	sessionID string
	log       zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS answer_snapshots (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT    NOT NULL,
  answers    TEXT    NOT NULL,
  answered   INTEGER NOT NULL,
  saved_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answer_snapshots_session ON answer_snapshots(session_id, id);
`

// Open opens (or creates) the database at path. sessionID tags every row
// written through this store.
func Open(ctx context.Context, path, sessionID string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// One writer; autosaves are rare and tiny.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}

	return &Store{
		db:        db,
		sessionID: sessionID,
		log:       log.With().Str("component", "snapshot_store").Logger(),
	}, nil
}

// SaveAnswers appends a copy of answers for the store's session.
func (s *Store) SaveAnswers(ctx context.Context, answers map[int]int) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answer_snapshots (session_id, answers, answered, saved_at) VALUES (?, ?, ?, ?)`,
		s.sessionID, string(raw), len(answers), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	s.log.Debug().Int("answered", len(answers)).Msg("Answers saved locally")
	return nil
}

// Latest returns the newest snapshot for sessionID.
func (s *Store) Latest(ctx context.Context, sessionID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, answers, saved_at FROM answer_snapshots
		 WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID)
	return scanEntry(row)
}

// Recent lists the newest snapshot of each session, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.session_id, a.answers, a.saved_at
		FROM answer_snapshots a
		JOIN (SELECT session_id, MAX(id) AS id FROM answer_snapshots GROUP BY session_id) m
		  ON a.id = m.id
		ORDER BY a.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes rows older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM answer_snapshots WHERE saved_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e       Entry
		raw     string
		savedAt int64
	)
	if err := sc.Scan(&e.SessionID, &raw, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNoSnapshot
		}
		return Entry{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &e.Answers); err != nil {
		return Entry{}, fmt.Errorf("decode snapshot: %w", err)
	}
	e.SavedAt = time.UnixMilli(savedAt)
	return e, nil
}
