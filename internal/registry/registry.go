// Package registry maps a user to the one session currently speaking for it.
package registry

import "sync"

type Registry struct {
	mu        sync.RWMutex
	byUser    map[string]string
	bySession map[string]string
}

func New() *Registry {
	return &Registry{
		byUser:    map[string]string{},
		bySession: map[string]string{},
	}
}

// Register binds userID to sessionID and returns the session it replaced, if
// any. The replaced session is not closed here; it just stops resolving.
func (r *Registry) Register(userID, sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byUser[userID]
	if prev != "" && prev != sessionID {
		delete(r.bySession, prev)
	}
	r.byUser[userID] = sessionID
	r.bySession[sessionID] = userID
	if prev == sessionID {
		return ""
	}
	return prev
}

func (r *Registry) Resolve(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[userID]
	return sid, ok
}

func (r *Registry) UserFor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.bySession[sessionID]
	return uid, ok
}

// IsCurrent reports whether sessionID is the authoritative session for userID.
func (r *Registry) IsCurrent(userID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sessionID != "" && r.byUser[userID] == sessionID
}

// Unregister drops the mapping only if sessionID still owns it, so a late
// close from a superseded connection cannot evict its replacement.
func (r *Registry) Unregister(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] != sessionID {
		return false
	}
	delete(r.byUser, userID)
	delete(r.bySession, sessionID)
	return true
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
