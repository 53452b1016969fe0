package store

import "time"

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Rating      int       `json:"rating"`
	RacesPlayed int       `json:"races_played"`
	Wins        int       `json:"wins"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MatchRecord is the durable outcome of one finalized race.
type MatchRecord struct {
	ID            string              `json:"id"`
	Source        string              `json:"source"`
	Threshold     int                 `json:"threshold"`
	CreatedAt     time.Time           `json:"created_at"`
	RaceStartedAt *time.Time          `json:"race_started_at,omitempty"`
	EndedAt       time.Time           `json:"ended_at"`
	Players       []MatchPlayerRecord `json:"players"`
}

type MatchPlayerRecord struct {
	UserID       string  `json:"user_id"`
	Username     string  `json:"username"`
	Position     int     `json:"position"`
	Steps        int     `json:"steps"`
	Distance     float64 `json:"distance"`
	FinishTimeMS *int64  `json:"finish_time_ms,omitempty"`
	DNF          bool    `json:"dnf"`
	RatingBefore int     `json:"rating_before"`
	RatingDelta  int     `json:"rating_delta"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Rating      int    `json:"rating"`
	RacesPlayed int    `json:"races_played"`
	Wins        int    `json:"wins"`
}
