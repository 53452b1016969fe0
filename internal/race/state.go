package race

import (
	"errors"
	"time"
)

const (
	// StepDistance is how far one counted tap moves a player.
	StepDistance = 0.6
	// FinishDistance is the finish line.
	FinishDistance = 100.0

	MinPlayers = 2
	MaxPlayers = 8

	// distances are tracked in tenths so the finish check stays exact.
	stepTenths   = 6
	finishTenths = 1000
)

var (
	ErrInvalidPlayerCount = errors.New("invalid_player_count")
	ErrDuplicatePlayer    = errors.New("duplicate_player")
	ErrInvalidSide        = errors.New("invalid_side")
)

type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

func ParseSide(v string) (Side, error) {
	switch Side(v) {
	case SideLeft, SideRight:
		return Side(v), nil
	default:
		return SideNone, ErrInvalidSide
	}
}

type State string

const (
	StateCreated   State = "created"
	StateCountdown State = "countdown"
	StateRacing    State = "racing"
	StateFinished  State = "finished"
)

// Entrant is what matchmaking hands over when a race is created.
type Entrant struct {
	UserID    string
	Username  string
	Rating    int
	SessionID string
}

// Player is one racer inside a Room. SessionID is a lookup key that is
// rebound on reconnect; the room never owns the session.
type Player struct {
	SessionID      string
	UserID         string
	Username       string
	Rating         int
	Steps          int
	LastSide       Side
	FinishedAt     *time.Time
	FinishTimeMS   *int64
	FinishPosition *int
	DNF            bool
	Connected      bool

	finishSeq int
}

func (p *Player) Distance() float64 {
	return float64(p.Steps*stepTenths) / 10
}

func (p *Player) Finished() bool {
	return p.FinishedAt != nil
}

func (p *Player) crossedLine() bool {
	return p.Steps*stepTenths >= finishTenths
}

// Threshold is how many finishers end a race of total players early.
func Threshold(total int) int {
	switch total {
	case 4:
		return 3
	case 8:
		return 4
	default:
		return total
	}
}
