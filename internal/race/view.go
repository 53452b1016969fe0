package race

import (
	"sort"
	"time"
)

type PlayerView struct {
	UserID         string  `json:"user_id"`
	Username       string  `json:"username"`
	Rating         int     `json:"rating"`
	Distance       float64 `json:"distance"`
	Steps          int     `json:"steps"`
	Finished       bool    `json:"finished"`
	FinishPosition *int    `json:"finish_position"`
	FinishTimeMS   *int64  `json:"finish_time_ms,omitempty"`
	DNF            bool    `json:"dnf,omitempty"`
	Connected      bool    `json:"connected"`
}

// Snapshot is a copy of a room that is safe to hand out after the room lock
// is released.
type Snapshot struct {
	MatchID          string       `json:"match_id"`
	State            State        `json:"state"`
	StartedAtMS      int64        `json:"started_at"`
	CountdownStartMS *int64       `json:"countdown_start"`
	RaceStartMS      *int64       `json:"race_start"`
	Finished         bool         `json:"finished"`
	Aborted          bool         `json:"aborted,omitempty"`
	Threshold        int          `json:"threshold"`
	Players          []PlayerView `json:"players"`
}

func ViewOf(p *Player) PlayerView {
	v := PlayerView{
		UserID:    p.UserID,
		Username:  p.Username,
		Rating:    p.Rating,
		Distance:  p.Distance(),
		Steps:     p.Steps,
		Finished:  p.Finished(),
		DNF:       p.DNF,
		Connected: p.Connected,
	}
	if p.FinishPosition != nil {
		pos := *p.FinishPosition
		v.FinishPosition = &pos
	}
	if p.FinishTimeMS != nil {
		ms := *p.FinishTimeMS
		v.FinishTimeMS = &ms
	}
	return v
}

func (r *Room) Snapshot() Snapshot {
	players := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, ViewOf(p))
	}
	return Snapshot{
		MatchID:          r.ID,
		State:            r.State,
		StartedAtMS:      r.StartedAt.UnixMilli(),
		CountdownStartMS: unixMilliPtr(r.CountdownStart),
		RaceStartMS:      unixMilliPtr(r.RaceStart),
		Finished:         r.Finished(),
		Aborted:          r.Aborted,
		Threshold:        r.Threshold(),
		Players:          players,
	}
}

// Standings returns the player views ordered by finish position. Players
// without a position keep their input order at the end.
func (s Snapshot) Standings() []PlayerView {
	out := make([]PlayerView, len(s.Players))
	copy(out, s.Players)
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

// ElapsedMS is the time since the race started, or zero before the start.
func (r *Room) ElapsedMS(now time.Time) int64 {
	if r.RaceStart == nil {
		return 0
	}
	return now.Sub(*r.RaceStart).Milliseconds()
}

func unixMilliPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
