package session

import (
	"sync"
	"time"
)

// BoundedHistory keeps at most capacity records per session and evicts the
// oldest first. Appends to the same session are serialized by a
// per-session mutex; the outer lock only guards get-or-create.
type BoundedHistory struct {
	mu       sync.RWMutex
	capacity int
	sessions map[string]*historyEntry
	now      func() time.Time
}

type historyEntry struct {
	mu        sync.Mutex
	createdAt time.Time
	records   []Record
}

func NewBoundedHistory(capacity int) *BoundedHistory {
	if capacity <= 0 {
		capacity = 10
	}
	return &BoundedHistory{
		capacity: capacity,
		sessions: make(map[string]*historyEntry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *BoundedHistory) Capacity() int { return h.capacity }

func (h *BoundedHistory) Get(sessionID string) (State, bool) {
	h.mu.RLock()
	e, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return e.snapshot(sessionID), true
}

func (h *BoundedHistory) GetOrCreate(sessionID string) State {
	return h.entry(sessionID).snapshot(sessionID)
}

func (h *BoundedHistory) Append(sessionID string, rec Record) bool {
	e := h.entry(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.records) < h.capacity {
		e.records = append(e.records, rec)
		return false
	}
	copy(e.records, e.records[1:])
	e.records[len(e.records)-1] = rec
	return true
}

func (h *BoundedHistory) Recent(sessionID string, n int) []Record {
	out := []Record{}
	if n <= 0 {
		return out
	}
	h.mu.RLock()
	e, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return out
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if n > len(e.records) {
		n = len(e.records)
	}
	return append(out, e.records[len(e.records)-n:]...)
}

func (h *BoundedHistory) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// Len reports how many sessions currently hold history.
func (h *BoundedHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *BoundedHistory) entry(sessionID string) *historyEntry {
	h.mu.RLock()
	e, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok {
		return e
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.sessions[sessionID]; ok {
		return e
	}
	e = &historyEntry{
		createdAt: h.now(),
		records:   make([]Record, 0, h.capacity),
	}
	h.sessions[sessionID] = e
	return e
}

func (e *historyEntry) snapshot(sessionID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	history := make([]Record, len(e.records))
	copy(history, e.records)
	return State{
		SessionID: sessionID,
		CreatedAt: e.createdAt,
		History:   history,
	}
}

var _ HistoryStore = (*BoundedHistory)(nil)
