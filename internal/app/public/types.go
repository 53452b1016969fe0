package public

import (
	"time"

	"tap-racer/internal/race"
	"tap-racer/internal/store"
)

type RacesResponse struct {
	Items []race.Snapshot `json:"items"`
}

// RaceResponse carries either the live snapshot of a running race or the
// stored record of a finished one.
type RaceResponse struct {
	MatchID string         `json:"match_id"`
	Live    bool           `json:"live"`
	State   *race.Snapshot `json:"state,omitempty"`
	Record  *MatchItem     `json:"record,omitempty"`
	Deltas  []RatingItem   `json:"rating_deltas,omitempty"`
}

type RatingItem struct {
	UserID    string `json:"user_id"`
	Delta     int    `json:"delta"`
	NewRating int    `json:"new_rating"`
}

type QueueItem struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Rating     int       `json:"rating"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type QueueResponse struct {
	Items  []QueueItem `json:"items"`
	Online int         `json:"online"`
}

type LeaderboardResponse struct {
	Items  []store.LeaderboardEntry `json:"items"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

type PlayerResponse struct {
	User          store.User `json:"user"`
	ActiveMatchID string     `json:"active_match_id,omitempty"`
}

type MatchItem struct {
	MatchID       string                    `json:"match_id"`
	Source        string                    `json:"source"`
	Threshold     int                       `json:"threshold"`
	CreatedAt     time.Time                 `json:"created_at"`
	RaceStartedAt *time.Time                `json:"race_started_at,omitempty"`
	EndedAt       time.Time                 `json:"ended_at"`
	Players       []store.MatchPlayerRecord `json:"players"`
}

type MatchesResponse struct {
	Items []MatchItem `json:"items"`
	Limit int         `json:"limit"`
}
