package race

import (
	"sort"
	"time"
)

// Room is the authoritative state of one race. It is not safe for concurrent
// use; the coordinator serialises every call under the room's lock.
type Room struct {
	ID             string
	Channel        string
	Players        []*Player
	StartedAt      time.Time
	CountdownStart *time.Time
	RaceStart      *time.Time
	State          State
	Aborted        bool

	finishCount int
}

// ChannelFor is the broadcast group name of the room with the given id.
func ChannelFor(id string) string {
	return "race:" + id
}

func NewRoom(id string, entrants []Entrant, now time.Time) (*Room, error) {
	if len(entrants) < MinPlayers || len(entrants) > MaxPlayers {
		return nil, ErrInvalidPlayerCount
	}
	seen := make(map[string]struct{}, len(entrants))
	players := make([]*Player, 0, len(entrants))
	for _, e := range entrants {
		if _, dup := seen[e.UserID]; dup {
			return nil, ErrDuplicatePlayer
		}
		seen[e.UserID] = struct{}{}
		players = append(players, &Player{
			SessionID: e.SessionID,
			UserID:    e.UserID,
			Username:  e.Username,
			Rating:    e.Rating,
			LastSide:  SideNone,
			Connected: true,
		})
	}
	return &Room{
		ID:        id,
		Channel:   ChannelFor(id),
		Players:   players,
		StartedAt: now,
		State:     StateCreated,
	}, nil
}

func (r *Room) Finished() bool {
	return r.State == StateFinished
}

func (r *Room) Threshold() int {
	return Threshold(len(r.Players))
}

func (r *Room) PlayerBySession(sessionID string) *Player {
	if sessionID == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.SessionID == sessionID {
			return p
		}
	}
	return nil
}

func (r *Room) PlayerByUser(userID string) *Player {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// BeginCountdown moves a created room into countdown. It reports false when
// the room is past that point.
func (r *Room) BeginCountdown(t0 time.Time) bool {
	if r.State != StateCreated {
		return false
	}
	at := t0
	r.CountdownStart = &at
	r.State = StateCountdown
	return true
}

func (r *Room) BeginRace(now time.Time) bool {
	if r.State != StateCountdown {
		return false
	}
	at := now
	r.RaceStart = &at
	r.State = StateRacing
	return true
}

// Tap applies one tap from the player bound to sessionID. It returns the
// player and true only when the tap advanced them; taps outside racing, from
// unknown sessions, or repeating the previous side are dropped.
func (r *Room) Tap(sessionID string, side Side, now time.Time) (*Player, bool) {
	if r.State != StateRacing {
		return nil, false
	}
	if side != SideLeft && side != SideRight {
		return nil, false
	}
	p := r.PlayerBySession(sessionID)
	if p == nil {
		return nil, false
	}
	if p.LastSide == side {
		return p, false
	}
	p.LastSide = side
	p.Steps++
	if p.crossedLine() && !p.Finished() {
		r.markFinished(p, now)
	}
	return p, true
}

func (r *Room) markFinished(p *Player, now time.Time) {
	at := now
	p.FinishedAt = &at
	var ms int64
	if r.RaceStart != nil {
		ms = now.Sub(*r.RaceStart).Milliseconds()
	}
	p.FinishTimeMS = &ms
	r.finishCount++
	p.finishSeq = r.finishCount
	r.rankFinishers()
}

// rankFinishers recomputes positions of every finished player by finish time.
func (r *Room) rankFinishers() {
	finished := r.finishers()
	for i, p := range finished {
		pos := i + 1
		p.FinishPosition = &pos
	}
}

func (r *Room) finishers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Finished() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.FinishedAt.Equal(*b.FinishedAt) {
			return a.FinishedAt.Before(*b.FinishedAt)
		}
		return a.finishSeq < b.finishSeq
	})
	return out
}

func (r *Room) FinishedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Finished() {
			n++
		}
	}
	return n
}

func (r *Room) ThresholdReached() bool {
	return r.FinishedCount() >= r.Threshold()
}

// ForceFinish marks p as having finished at now, used when the rest of a
// two-player field drops out.
func (r *Room) ForceFinish(p *Player, now time.Time) {
	if p == nil || p.Finished() {
		return
	}
	r.markFinished(p, now)
}

// Finalize ranks every remaining player after the finishers (furthest first,
// stable on input order) and closes the room. A second call is a no-op and
// returns false.
func (r *Room) Finalize() bool {
	if r.State == StateFinished {
		return false
	}
	finished := r.finishers()
	pending := make([]*Player, 0, len(r.Players)-len(finished))
	for _, p := range r.Players {
		if !p.Finished() {
			pending = append(pending, p)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Steps > pending[j].Steps
	})
	pos := len(finished)
	for _, p := range pending {
		pos++
		at := pos
		p.FinishPosition = &at
	}
	r.State = StateFinished
	return true
}

// Abort closes a room that never started racing. No positions are assigned.
func (r *Room) Abort() bool {
	if r.State == StateFinished || r.State == StateRacing {
		return false
	}
	r.State = StateFinished
	r.Aborted = true
	return true
}

// Standings returns players ordered by finish position. Players without a
// position sort last in input order.
func (r *Room) Standings() []*Player {
	out := make([]*Player, len(r.Players))
	copy(out, r.Players)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].FinishPosition, out[j].FinishPosition
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}
