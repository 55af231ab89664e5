package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/herbieproject/herbie-dash/internal/poller"
)

const (
	defaultQueryLimit = 1000
	maxQueryLimit     = 10000
)

const insertReading = `INSERT INTO readings (source_id, polled_at, reading_at, channel, value, delta) VALUES (?, ?, ?, ?, ?, ?)`

const selectReadings = `SELECT source_id, polled_at, reading_at, channel, value, delta FROM readings WHERE source_id = ? AND polled_at >= ? ORDER BY polled_at ASC, id ASC LIMIT ?`

const deleteBefore = `DELETE FROM readings WHERE polled_at < ?`

// Reading is one channel value recorded at one poll.
type Reading struct {
	SourceID  string     `json:"source_id"`
	PolledAt  time.Time  `json:"polled_at"`
	ReadingAt *time.Time `json:"reading_at,omitempty"`
	Channel   string     `json:"channel"`
	Value     float64    `json:"value"`
	Delta     *float64   `json:"delta"`
}

// Store is the SQLite-backed reading history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	s := NewWithDB(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection without running migrations.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		polled_at INTEGER NOT NULL,
		reading_at INTEGER,
		channel TEXT NOT NULL,
		value REAL NOT NULL,
		delta REAL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_source_polled ON readings(source_id, polled_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Append records the latest row of a fresh frame, one reading per channel.
// Unavailable and empty frames are ignored.
func (s *Store) Append(ctx context.Context, f *poller.Frame) error {
	if f == nil || f.Stale || f.State != poller.StatePolling || f.Snapshot.Empty() {
		return nil
	}
	last, _ := f.Snapshot.Last()

	var readingAt any
	if last.HasTime() {
		readingAt = last.Time.UnixMilli()
	}
	polledAt := f.PolledAt.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	for i, col := range f.Snapshot.Columns {
		var delta any
		if d, ok := f.Delta.Value(col); ok {
			delta = d
		}
		if _, err := tx.ExecContext(ctx, insertReading,
			f.SourceID, polledAt, readingAt, col, last.Values[i], delta); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("history: insert %s/%s: %w", f.SourceID, col, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Query returns readings of sourceID polled at or after since, oldest first.
// limit <= 0 selects the default; larger values are capped.
func (s *Store) Query(ctx context.Context, sourceID string, since time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	rows, err := s.db.QueryContext(ctx, selectReadings, sourceID, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("history: query %s: %w", sourceID, err)
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var (
			r         Reading
			polledAt  int64
			readingAt sql.NullInt64
			delta     sql.NullFloat64
		)
		if err := rows.Scan(&r.SourceID, &polledAt, &readingAt, &r.Channel, &r.Value, &delta); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.PolledAt = time.UnixMilli(polledAt).UTC()
		if readingAt.Valid {
			t := time.UnixMilli(readingAt.Int64).UTC()
			r.ReadingAt = &t
		}
		if delta.Valid && !math.IsNaN(delta.Float64) {
			d := delta.Float64
			r.Delta = &d
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Evict deletes readings polled before cutoff and returns how many were removed.
func (s *Store) Evict(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteBefore, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: evict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: evict rows affected: %w", err)
	}
	return n, nil
}

// Run deletes readings older than retention until ctx is cancelled. It runs
// every retention/24, bounded to [1m, 1h].
func (s *Store) Run(ctx context.Context, retention time.Duration) {
	interval := retention / 24
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Evict(ctx, s.now().Add(-retention))
			if err != nil {
				slog.Warn("history: eviction failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("history: evicted readings", "count", n)
			}
		}
	}
}
