// Package history keeps a local SQLite timeline of quote invocations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"github.com/loqalabs/quoteplay/internal/config"
)

const (
	RetentionEphemeral  = "ephemeral"
	RetentionSession    = "session"
	RetentionPersistent = "persistent"
)

// Invocation is one recorded say/save run.
type Invocation struct {
	ID         string
	Text       string
	Outcome    string
	Model      string
	AudioURL   string
	Detail     string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Event is one state transition within an invocation.
type Event struct {
	ID           int64
	InvocationID string
	Type         string
	Detail       string
	CreatedAt    time.Time
}

// Result is the final state written by Finish.
type Result struct {
	Outcome  string
	Model    string
	AudioURL string
	Detail   string
}

// Store wraps the SQLite invocation timeline. In ephemeral mode no database
// is opened and writes are dropped.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "history"))
	if cfg.RetentionMode == RetentionEphemeral {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS invocations (
    invocation_id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    outcome TEXT NOT NULL DEFAULT 'running',
    model TEXT,
    audio_url TEXT,
    detail TEXT,
    created_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invocation_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(invocation_id) REFERENCES invocations(invocation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_invocation_created ON events(invocation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enabled reports whether writes are persisted.
func (s *Store) Enabled() bool { return s != nil && s.db != nil }

// Begin allocates an invocation id and records the invocation. The id is
// returned even when persistence is disabled so logs and bus events can
// still be correlated.
func (s *Store) Begin(ctx context.Context, text string) (string, error) {
	id := xid.New().String()
	if !s.Enabled() {
		return id, nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations(invocation_id, text, created_at) VALUES(?, ?, ?)`,
		id, text, s.clock().UnixNano())
	if err != nil {
		return id, fmt.Errorf("insert invocation: %w", err)
	}
	return id, nil
}

// Append writes one transition event.
func (s *Store) Append(ctx context.Context, invocationID, eventType, detail string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(invocation_id, event_type, detail, created_at) VALUES(?, ?, ?, ?)`,
		invocationID, eventType, detail, s.clock().UnixNano())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Finish stores the final outcome of an invocation.
func (s *Store) Finish(ctx context.Context, invocationID string, res Result) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE invocations SET outcome = ?, model = ?, audio_url = ?, detail = ?, finished_at = ?
		 WHERE invocation_id = ?`,
		res.Outcome, res.Model, res.AudioURL, res.Detail, s.clock().UnixNano(), invocationID)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}
	return nil
}

// Recent lists up to limit invocations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Invocation, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT invocation_id, text, outcome, COALESCE(model, ''), COALESCE(audio_url, ''),
		        COALESCE(detail, ''), created_at, COALESCE(finished_at, 0)
		 FROM invocations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		var created, finished int64
		if err := rows.Scan(&inv.ID, &inv.Text, &inv.Outcome, &inv.Model, &inv.AudioURL, &inv.Detail, &created, &finished); err != nil {
			return nil, err
		}
		inv.CreatedAt = time.Unix(0, created)
		if finished > 0 {
			inv.FinishedAt = time.Unix(0, finished)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Events retrieves up to limit events for an invocation ordered by time.
func (s *Store) Events(ctx context.Context, invocationID string, limit int) ([]Event, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invocation_id, event_type, COALESCE(detail, ''), created_at
		 FROM events WHERE invocation_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, invocationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created int64
		if err := rows.Scan(&e.ID, &e.InvocationID, &e.Type, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.Enabled() {
		return nil
	}
	if s.cfg.RetentionMode != RetentionPersistent && s.cfg.RetentionMode != RetentionSession {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM invocations WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM invocations WHERE invocation_id IN (
			SELECT invocation_id FROM invocations ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
