// Package broadcast fans encoded messages out to sessions and named groups.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub owns the outbound queue of every registered session. Enqueue never
// blocks; a session whose buffer is full drops the message and is logged.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]chan []byte
	groups   map[string]map[string]struct{}
	dropped  func()
}

func NewHub() *Hub {
	return &Hub{
		sessions: map[string]chan []byte{},
		groups:   map[string]map[string]struct{}{},
	}
}

// OnDrop installs a hook run whenever a message is dropped.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	h.dropped = fn
	h.mu.Unlock()
}

func (h *Hub) Register(sessionID string, send chan []byte) {
	h.mu.Lock()
	h.sessions[sessionID] = send
	h.mu.Unlock()
}

// Unregister forgets the session and removes it from every group. The send
// channel is left to its owner to close.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	for name, members := range h.groups {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Send(sessionID string, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enqueueLocked(sessionID, msg)
}

func (h *Hub) Subscribe(group, sessionID string) {
	h.mu.Lock()
	members := h.groups[group]
	if members == nil {
		members = map[string]struct{}{}
		h.groups[group] = members
	}
	members[sessionID] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(group, sessionID string) {
	h.mu.Lock()
	if members := h.groups[group]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(group string, msg []byte) {
	h.PublishExcept(group, "", msg)
}

func (h *Hub) PublishExcept(group, skipSessionID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sid := range h.groups[group] {
		if sid == skipSessionID {
			continue
		}
		h.enqueueLocked(sid, msg)
	}
}

// Broadcast sends to every registered session.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sid := range h.sessions {
		h.enqueueLocked(sid, msg)
	}
}

func (h *Hub) DropGroup(group string) {
	h.mu.Lock()
	delete(h.groups, group)
	h.mu.Unlock()
}

func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) enqueueLocked(sessionID string, msg []byte) bool {
	ch := h.sessions[sessionID]
	if ch == nil {
		return false
	}
	if safeSend(ch, msg) {
		return true
	}
	log.Warn().Str("session_id", sessionID).Msg("outbound_dropped")
	if h.dropped != nil {
		h.dropped()
	}
	return false
}

func safeSend(ch chan []byte, msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
