package matchmaking

import (
	"sort"
	"sync"
	"time"
)

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryMatched   EntryStatus = "matched"
	EntryCancelled EntryStatus = "cancelled"
)

type Entry struct {
	UserID     string
	Username   string
	Rating     int
	Status     EntryStatus
	EnqueuedAt time.Time
}

// Queue is the FIFO pool of players waiting for a race. It only holds users
// who are waiting, matched into a race being built, or cancelled since the
// last Join.
type Queue struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*Entry
}

func NewQueue() *Queue {
	return &Queue{now: time.Now, entries: map[string]*Entry{}}
}

// Join upserts the user as pending. Joining while already pending keeps the
// original place in line; a stale matched or cancelled entry restarts it.
func (q *Queue) Join(userID, username string, rating int) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.entries[userID]; e != nil && e.Status == EntryPending {
		e.Username = username
		e.Rating = rating
		return *e
	}
	q.pruneCancelledLocked()
	e := &Entry{
		UserID:     userID,
		Username:   username,
		Rating:     rating,
		Status:     EntryPending,
		EnqueuedAt: q.now(),
	}
	q.entries[userID] = e
	return *e
}

// Leave cancels the user's pending entry. It reports whether one existed.
func (q *Queue) Leave(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[userID]
	if e == nil || e.Status != EntryPending {
		return false
	}
	e.Status = EntryCancelled
	return true
}

// MatchCandidates takes the n oldest pending entries and flips them to
// matched in one step. It returns nothing when fewer than n are waiting.
func (q *Queue) MatchCandidates(n int) ([]Entry, error) {
	if n < 2 {
		return nil, ErrInvalidMatchSize
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.pendingLocked()
	if len(pending) < n {
		return nil, nil
	}
	out := make([]Entry, 0, n)
	for _, e := range pending[:n] {
		e.Status = EntryMatched
		out = append(out, *e)
	}
	return out, nil
}

// Requeue returns matched users to pending with their original enqueue time,
// used when a match could not be turned into a race.
func (q *Queue) Requeue(userIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range userIDs {
		if e := q.entries[id]; e != nil && e.Status == EntryMatched {
			e.Status = EntryPending
		}
	}
}

// Release forgets matched users once their race exists.
func (q *Queue) Release(userIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range userIDs {
		if e := q.entries[id]; e != nil && e.Status == EntryMatched {
			delete(q.entries, id)
		}
	}
}

// Cancel marks users cancelled regardless of their current status.
func (q *Queue) Cancel(userIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range userIDs {
		if e := q.entries[id]; e != nil {
			e.Status = EntryCancelled
		}
	}
}

func (q *Queue) Status(userID string) (EntryStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[userID]
	if e == nil {
		return "", false
	}
	return e.Status, true
}

// Pending lists waiting entries oldest first.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.pendingLocked()
	out := make([]Entry, 0, len(pending))
	for _, e := range pending {
		out = append(out, *e)
	}
	return out
}

func (q *Queue) pruneCancelledLocked() {
	for id, e := range q.entries {
		if e.Status == EntryCancelled {
			delete(q.entries, id)
		}
	}
}

func (q *Queue) pendingLocked() []*Entry {
	out := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Status == EntryPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}
