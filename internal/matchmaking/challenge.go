package matchmaking

import (
	"sync"
	"time"
)

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

type Challenge struct {
	ID           string
	ChallengerID string
	OpponentID   string
	Status       ChallengeStatus
	CreatedAt    time.Time
}

type pairKey struct {
	challenger string
	opponent   string
}

// Challenges tracks peer invites keyed by ordered (challenger, opponent) pair.
// Only the latest challenge per pair is retained.
type Challenges struct {
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
	byKey map[pairKey]*Challenge
}

func NewChallenges(newID func() string) *Challenges {
	return &Challenges{now: time.Now, newID: newID, byKey: map[pairKey]*Challenge{}}
}

// Create expires any pending challenge for the same ordered pair and records a
// new pending one.
func (c *Challenges) Create(challengerID, opponentID string) (Challenge, error) {
	if challengerID == opponentID {
		return Challenge{}, ErrSelfChallenge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := pairKey{challengerID, opponentID}
	if prev := c.byKey[k]; prev != nil && prev.Status == ChallengePending {
		prev.Status = ChallengeExpired
	}
	ch := &Challenge{
		ID:           c.newID(),
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		Status:       ChallengePending,
		CreatedAt:    c.now(),
	}
	c.byKey[k] = ch
	return *ch, nil
}

// Accept flips the pending challenge to accepted. A second accept of the same
// challenge returns ErrChallengeNotFound.
func (c *Challenges) Accept(challengerID, opponentID string) (Challenge, error) {
	return c.resolve(challengerID, opponentID, ChallengeAccepted)
}

func (c *Challenges) Decline(challengerID, opponentID string) (Challenge, error) {
	return c.resolve(challengerID, opponentID, ChallengeDeclined)
}

func (c *Challenges) resolve(challengerID, opponentID string, to ChallengeStatus) (Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.byKey[pairKey{challengerID, opponentID}]
	if ch == nil || ch.Status != ChallengePending {
		return Challenge{}, ErrChallengeNotFound
	}
	ch.Status = to
	return *ch, nil
}

// Reopen puts an accepted challenge back to pending, used when the race it
// should have produced could not be created.
func (c *Challenges) Reopen(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.byKey {
		if ch.ID == id && ch.Status == ChallengeAccepted {
			ch.Status = ChallengePending
			return
		}
	}
}

// ExpireUser expires every pending challenge the user sent or received and
// returns them.
func (c *Challenges) ExpireUser(userID string) []Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Challenge
	for _, ch := range c.byKey {
		if ch.Status != ChallengePending {
			continue
		}
		if ch.ChallengerID == userID || ch.OpponentID == userID {
			ch.Status = ChallengeExpired
			out = append(out, *ch)
		}
	}
	return out
}

func (c *Challenges) Get(challengerID, opponentID string) (Challenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.byKey[pairKey{challengerID, opponentID}]
	if ch == nil {
		return Challenge{}, false
	}
	return *ch, true
}
