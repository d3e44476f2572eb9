package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry maps client IDs to MCP session IDs. A client is registered
// when it calls any tool with client_id and then receives canvas change
// notifications.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // clientID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a client ID with a session ID.
// If the client already has a session, it is overwritten (reconnect).
func (r *SessionRegistry) Register(clientID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clientID] = sessionID
}

// SessionFor returns the session ID for the given client, if connected.
func (r *SessionRegistry) SessionFor(clientID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[clientID]
	return sid, ok
}

// SessionIDs returns every distinct registered session, sorted.
func (r *SessionRegistry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for _, sid := range r.sessions {
		if !slices.Contains(out, sid) {
			out = append(out, sid)
		}
	}
	slices.Sort(out)
	return out
}

// Remove deletes all client mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, cid)
		}
	}
}
