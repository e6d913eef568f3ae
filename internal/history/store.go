// Package history persists recent mail search queries.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DefaultLimit is how many queries are kept when no limit is configured.
const DefaultLimit = 10

// Entry is one remembered query.
type Entry struct {
	Query  string
	UsedAt time.Time
}

type entryRow struct {
	Query  string `db:"query"`
	UsedAt int64  `db:"used_at"`
}

// Store keeps the most recent distinct queries, newest first. Queries are
// compared case-insensitively; re-adding one moves it to the front.
type Store struct {
	db    *sqlx.DB
	limit int
	now   func() time.Time
}

// Open opens (or creates) the history database at path and applies pending
// migrations. limit <= 0 uses DefaultLimit.
func Open(path string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// One writer; also keeps every statement on the same connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, limit: limit, now: time.Now}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating history db: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records query as the most recent search. Blank queries are ignored.
func (s *Store) Add(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO search_history (query, seq, used_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM search_history), ?)
		ON CONFLICT(query) DO UPDATE SET
			query   = excluded.query,
			seq     = excluded.seq,
			used_at = excluded.used_at`,
		query, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording query: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE query NOT IN (
			SELECT query FROM search_history ORDER BY seq DESC LIMIT ?
		)`,
		s.limit,
	)
	if err != nil {
		return fmt.Errorf("pruning history: %w", err)
	}

	return tx.Commit()
}

// Recent returns up to n queries, newest first. n <= 0 returns all kept.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > s.limit {
		n = s.limit
	}

	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT query, used_at FROM search_history ORDER BY seq DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{Query: r.Query, UsedAt: time.UnixMilli(r.UsedAt)})
	}
	return entries, nil
}

// Remove forgets one query. Unknown queries are not an error.
func (s *Store) Remove(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM search_history WHERE query = ?", strings.TrimSpace(query))
	if err != nil {
		return fmt.Errorf("removing query: %w", err)
	}
	return nil
}

// Clear forgets every query.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM search_history"); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}
