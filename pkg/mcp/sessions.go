package mcp

import "sync"

// SessionRegistry maps nodeflow session IDs to the MCP client session that opened them.
// Populated when a client calls nodeflow.open_session.
type SessionRegistry struct {
	mu     sync.RWMutex
	owners map[string]string // sessionID → clientID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{owners: make(map[string]string)}
}

// Register records clientID as the owner of sessionID, replacing any earlier owner.
func (r *SessionRegistry) Register(sessionID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[sessionID] = clientID
}

// ClientFor returns the client that owns sessionID, if known.
func (r *SessionRegistry) ClientFor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.owners[sessionID]
	return cid, ok
}

// Remove forgets a single session.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, sessionID)
}

// RemoveClient forgets every session owned by clientID and returns their IDs.
// Called when a client disconnects.
func (r *SessionRegistry) RemoveClient(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for sid, cid := range r.owners {
		if cid == clientID {
			delete(r.owners, sid)
			removed = append(removed, sid)
		}
	}
	return removed
}
