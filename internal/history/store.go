// Package history persists task outcomes (completed, failed, timed out,
// swept) to a local SQLite database for after-the-fact diagnostics.
//
// Only outcomes are recorded; queue state is never persisted, so a restart
// starts from empty queues regardless of this store's contents.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "sealdb/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrClosed = errors.New("history: store closed")

// Entry is one recorded task outcome.
type Entry struct {
	At          time.Time
	Description string
	Priority    string
	Type        string
	Outcome     string // "completed", "failed", "timeout", "swept"
	QueueDelay  time.Duration
	Duration    time.Duration
	Error       string
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is a single-writer SQLite store.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_history(at, description, priority, task_type, outcome, queue_delay_ms, duration_ms, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Description, e.Priority, e.Type, e.Outcome,
		e.QueueDelay.Milliseconds(), e.Duration.Milliseconds(), nullStr(e.Error),
	)
	return err
}

// Recent returns the latest n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, description, priority, task_type, outcome, queue_delay_ms, duration_ms, COALESCE(err, '')
		 FROM task_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		var qd, dur int64
		if err := rows.Scan(&at, &e.Description, &e.Priority, &e.Type, &e.Outcome, &qd, &dur, &e.Error); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = ts
		}
		e.QueueDelay = time.Duration(qd) * time.Millisecond
		e.Duration = time.Duration(dur) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many rows were
// removed. Wired as a recurring maintenance job.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE at < ?`, olderThan.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
