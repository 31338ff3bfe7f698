package session

import "time"

// Record is one chat interaction. Records are never mutated after append.
type Record struct {
	ID             string            `json:"id"`
	SessionID      string            `json:"session_id"`
	Agent          string            `json:"agent"`
	Timestamp      time.Time         `json:"timestamp"`
	RawMessage     string            `json:"raw_message"`
	Intent         string            `json:"intent"`
	Facets         map[string]string `json:"facets,omitempty"`
	Rating         *float64          `json:"rating,omitempty"`
	PayloadSummary string            `json:"payload_summary"`
}

// State is a read-only snapshot of one session's history.
type State struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	History   []Record  `json:"history"`
}

// HistoryStore owns the interaction log of every session it has seen.
type HistoryStore interface {
	Get(sessionID string) (State, bool)
	GetOrCreate(sessionID string) State
	// Append stores rec and reports whether the oldest record was evicted.
	Append(sessionID string, rec Record) (evicted bool)
	// Recent returns up to n records, oldest first.
	Recent(sessionID string, n int) []Record
	Drop(sessionID string)
	Capacity() int
}
