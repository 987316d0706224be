package session

import (
	"sync"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/monitor"
)

// Registry tracks live interview connections keyed by session id. A session
// id maps to at most one connection; a second connection for the same
// session replaces nothing and is rejected by the caller.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Entry holds the per-connection state a live session owns.
type Entry struct {
	SessionID string
	UserID    string
	Monitor   *monitor.Monitor
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a live session. Returns false when the session already has
// a connection.
func (r *Registry) Register(sessionID string, entry *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[sessionID]; exists {
		return false
	}
	r.entries[sessionID] = entry
	return true
}

// Unregister removes a session. Safe to call after the entry is already
// gone, which happens when a late analysis result races a disconnect.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

// Get returns the live entry for a session, or nil.
func (r *Registry) Get(sessionID string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[sessionID]
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
