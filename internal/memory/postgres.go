package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists knowledge entries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			priority TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			description TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_user_created ON memory_entries (user_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_keywords ON memory_entries USING GIN (keywords);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const entryColumns = `id, user_id, content, type, priority, tags, keywords, description, source, created_at`

func (s *PostgresStore) Save(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID,
		e.UserID,
		e.Content,
		e.Type,
		e.Priority,
		e.Tags,
		e.Keywords,
		e.Description,
		e.Source,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save memory entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Candidates(ctx context.Context, userID string, terms []string) ([]Entry, error) {
	if len(terms) == 0 {
		return []Entry{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM memory_entries
		 WHERE user_id=$1 AND (
			keywords && $2::text[]
			OR EXISTS (SELECT 1 FROM unnest($2::text[]) AS t(term) WHERE content ILIKE '%' || t.term || '%')
		 )
		 ORDER BY created_at`,
		userID,
		terms,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory candidates: %w", err)
	}
	return collectEntries(rows)
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM memory_entries WHERE user_id=$1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memory entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memory_entries WHERE user_id=$1 AND id=$2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete memory entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Type, &e.Priority, &e.Tags, &e.Keywords, &e.Description, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}
