package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from databaseURL: empty is in-memory, postgres://
// uses pgx, sqlite://path or a *.db / *.sqlite path uses SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"):
		return NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", url)
	}
}

// Backend names the store kind for status output.
func Backend(s Store) string {
	switch s.(type) {
	case *InMemoryStore:
		return "memory"
	case *PostgresStore:
		return "postgres"
	case *SQLiteStore:
		return "sqlite"
	default:
		return "custom"
	}
}
