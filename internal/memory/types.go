package memory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("memory entry not found")
	ErrEmptyContent = errors.New("memory content is required")
	ErrUserRequired = errors.New("memory user id is required")
)

const (
	DefaultType     = "note"
	DefaultPriority = "medium"

	SourceChat   = "chat"
	SourceAPI    = "api"
	SourceUpload = "upload"
)

// Entry is one stored unit of free text. Entries are never edited; a newer
// entry supersedes an older one.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Priority    string    `json:"priority"`
	Tags        []string  `json:"tags"`
	Keywords    []string  `json:"keywords"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists knowledge entries keyed by user.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	// Candidates returns the user's entries that share a keyword with terms
	// or contain one of them as a substring. Ranking happens in Knowledge.
	Candidates(ctx context.Context, userID string, terms []string) ([]Entry, error)
	// List returns all entries of the user, oldest first.
	List(ctx context.Context, userID string) ([]Entry, error)
	Delete(ctx context.Context, userID, id string) error
	Close() error
}
