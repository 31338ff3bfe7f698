package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists knowledge entries in a local SQLite file. Keyword and
// tag lists are stored as JSON arrays.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS memory_entries (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		content     TEXT NOT NULL,
		type        TEXT NOT NULL,
		priority    TEXT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '[]',
		keywords    TEXT NOT NULL DEFAULT '[]',
		description TEXT NOT NULL DEFAULT '',
		source      TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memory_entries_user_created ON memory_entries(user_id, created_at);
	`)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	tags, err := json.Marshal(nonNil(e.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	keywords, err := json.Marshal(nonNil(e.Keywords))
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Content, e.Type, e.Priority, string(tags), string(keywords), e.Description, e.Source, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save memory entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Candidates(ctx context.Context, userID string, terms []string) ([]Entry, error) {
	if len(terms) == 0 {
		return []Entry{}, nil
	}
	clauses := make([]string, 0, len(terms))
	args := make([]any, 0, 1+2*len(terms))
	args = append(args, userID)
	for _, term := range terms {
		clauses = append(clauses, `(keywords LIKE ? OR lower(content) LIKE ?)`)
		args = append(args, `%"`+term+`"%`, "%"+term+"%")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM memory_entries
		 WHERE user_id = ? AND (`+strings.Join(clauses, " OR ")+`)
		 ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory candidates: %w", err)
	}
	return scanSQLiteEntries(rows)
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM memory_entries WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory entries: %w", err)
	}
	return scanSQLiteEntries(rows)
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete memory entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanSQLiteEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e              Entry
			tags, keywords string
			created        int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Type, &e.Priority, &tags, &keywords, &e.Description, &e.Source, &created); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(keywords), &e.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords of %s: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
