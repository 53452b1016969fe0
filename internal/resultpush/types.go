package resultpush

import "time"

const (
	EventRaceFinished = "race_finished"

	ScopeAll    = "all"
	ScopeSource = "source"
	ScopeUser   = "user"
)

// PushTarget is one outbound webhook. ScopeValue is the match source
// ("queue", "challenge") for ScopeSource and a user id for ScopeUser.
type PushTarget struct {
	Platform       string   `json:"platform"`
	Endpoint       string   `json:"endpoint"`
	Secret         string   `json:"secret"`
	ScopeType      string   `json:"scope_type"`
	ScopeValue     string   `json:"scope_value"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

type Config struct {
	Enabled             bool
	ConfigPath          string
	ConfigReload        time.Duration
	Targets             []PushTarget
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	RequestTimeout      time.Duration
	DispatchBuffer      int
}

// RaceEvent is the payload delivered to generic webhooks and the input to
// the chat formatters.
type RaceEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	ServerTS  int64          `json:"server_ts"`
	MatchID   string         `json:"match_id"`
	Source    string         `json:"source"`
	Threshold int            `json:"threshold"`
	Players   []PlayerResult `json:"players"`
}

type PlayerResult struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Position     int    `json:"position"`
	DNF          bool   `json:"dnf"`
	Delta        int    `json:"delta"`
	NewRating    int    `json:"new_rating"`
	FinishTimeMS *int64 `json:"finish_time_ms,omitempty"`
}

func (e RaceEvent) hasUser(userID string) bool {
	for _, p := range e.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

type FormattedMessage struct {
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []MessageField
}

type pushJob struct {
	Target    PushTarget
	Event     RaceEvent
	Formatted FormattedMessage
	Attempt   int
}

func (j pushJob) key() string {
	return targetKey(j.Target)
}

func targetKey(t PushTarget) string {
	return t.Platform + "|" + t.Endpoint + "|" + t.ScopeType + "|" + t.ScopeValue
}
