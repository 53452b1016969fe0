// Package protocol holds the JSON messages exchanged over the race websocket.
package protocol

import (
	"encoding/json"

	"tap-racer/internal/race"
	"tap-racer/internal/rating"
)

const ProtocolVersion = "1.0"

// Inbound message types.
const (
	TypeJoinQueue        = "join_queue"
	TypeLeaveQueue       = "leave_queue"
	TypeSendChallenge    = "send_challenge"
	TypeAcceptChallenge  = "accept_challenge"
	TypeDeclineChallenge = "decline_challenge"
	TypeJoinRace         = "join_race"
	TypeTap              = "tap"
	TypeRejoinRace       = "rejoin_race"
)

// Inbound is the union of every client message; unused fields stay empty.
type Inbound struct {
	Type         string `json:"type"`
	RequestID    string `json:"request_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	FromUserID   string `json:"from_user_id,omitempty"`
	MatchID      string `json:"match_id,omitempty"`
	Side         string `json:"side,omitempty"`
	AuthToken    string `json:"auth_token,omitempty"`
}

type Connected struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Rating          int    `json:"rating"`
	SessionID       string `json:"session_id"`
}

type Notice struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MatchID         string `json:"match_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type QueueEntry struct {
	UserID string `json:"user_id"`
	Rating int    `json:"rating"`
}

type QueueUpdate struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Entries         []QueueEntry `json:"entries"`
}

type ChallengeSent struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TargetUserID    string `json:"target_user_id"`
}

type ChallengeReceived struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	FromUserID      string `json:"from_user_id"`
	FromRating      int    `json:"from_rating"`
}

type ChallengeDeclined struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ByUserID        string `json:"by_user_id"`
}

type MatchPlayer struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type MatchFound struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	MatchID         string        `json:"match_id"`
	Players         []MatchPlayer `json:"players"`
}

type CountdownStart struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MatchID         string `json:"match_id"`
	CountdownStart  int64  `json:"countdown_start"`
	DurationMS      int64  `json:"duration_ms"`
}

type RaceStart struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MatchID         string `json:"match_id"`
	RaceStart       int64  `json:"race_start"`
}

type Progress struct {
	UserID         string  `json:"user_id"`
	Distance       float64 `json:"distance"`
	Steps          int     `json:"steps"`
	Finished       bool    `json:"finished"`
	FinishPosition *int    `json:"finish_position"`
}

type RaceUpdate struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	MatchID         string     `json:"match_id"`
	Players         []Progress `json:"players"`
	Timestamp       int64      `json:"timestamp"`
}

type Delta struct {
	UserID    string `json:"user_id"`
	Delta     int    `json:"delta"`
	NewRating int    `json:"new_rating"`
}

type RaceEnd struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	MatchID         string            `json:"match_id"`
	Results         []race.PlayerView `json:"results"`
	RatingDeltas    []Delta           `json:"rating_deltas"`
	Threshold       int               `json:"threshold"`
}

type RaceSnapshot struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	MatchID         string            `json:"match_id"`
	State           race.State        `json:"state"`
	ElapsedMS       int64             `json:"elapsed_ms"`
	CountdownStart  *int64            `json:"countdown_start"`
	RaceStart       *int64            `json:"race_start"`
	Finished        bool              `json:"finished"`
	Threshold       int               `json:"threshold"`
	Me              race.PlayerView   `json:"me"`
	Opponents       []race.PlayerView `json:"opponents"`
}

type Error struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Request         string `json:"request,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

func NewNotice(typ, matchID, userID string) Notice {
	return Notice{Type: typ, ProtocolVersion: ProtocolVersion, MatchID: matchID, UserID: userID}
}

func NewError(code, request, requestID string) Error {
	return Error{Type: "error", ProtocolVersion: ProtocolVersion, Code: code, Request: request, RequestID: requestID}
}

func NewRaceUpdate(snap race.Snapshot, ts int64) RaceUpdate {
	players := make([]Progress, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, Progress{
			UserID:         p.UserID,
			Distance:       p.Distance,
			Steps:          p.Steps,
			Finished:       p.Finished,
			FinishPosition: p.FinishPosition,
		})
	}
	return RaceUpdate{Type: "race_update", ProtocolVersion: ProtocolVersion, MatchID: snap.MatchID, Players: players, Timestamp: ts}
}

func NewRaceEnd(snap race.Snapshot, results []rating.Result) RaceEnd {
	deltas := make([]Delta, 0, len(results))
	for _, r := range results {
		deltas = append(deltas, Delta{UserID: r.UserID, Delta: r.Delta, NewRating: r.NewRating})
	}
	return RaceEnd{
		Type:            "race_end",
		ProtocolVersion: ProtocolVersion,
		MatchID:         snap.MatchID,
		Results:         snap.Standings(),
		RatingDeltas:    deltas,
		Threshold:       snap.Threshold,
	}
}

// NewRaceSnapshot splits snap into the caller's own record and everyone else.
func NewRaceSnapshot(snap race.Snapshot, userID string, elapsedMS int64) RaceSnapshot {
	out := RaceSnapshot{
		Type:            "race_snapshot",
		ProtocolVersion: ProtocolVersion,
		MatchID:         snap.MatchID,
		State:           snap.State,
		ElapsedMS:       elapsedMS,
		CountdownStart:  snap.CountdownStartMS,
		RaceStart:       snap.RaceStartMS,
		Finished:        snap.Finished,
		Threshold:       snap.Threshold,
		Opponents:       []race.PlayerView{},
	}
	for _, p := range snap.Players {
		if p.UserID == userID {
			out.Me = p
			continue
		}
		out.Opponents = append(out.Opponents, p)
	}
	return out
}

// Encode marshals a message; every type here is plain data so errors are not
// expected.
func Encode(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
