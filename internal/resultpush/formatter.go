package resultpush

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	colorWin      = 0x57F287
	colorFinished = 0x5865F2

	shortIDLimit  = 10
	defaultFooter = "tap-racer results"
)

// FormatMessage renders a race event for chat platforms. Unknown event types
// report false.
func FormatMessage(ev RaceEvent) (FormattedMessage, bool) {
	if ev.EventType != EventRaceFinished || len(ev.Players) == 0 {
		return FormattedMessage{}, false
	}
	winner := ev.Players[0]
	for _, p := range ev.Players {
		if p.Position == 1 {
			winner = p
			break
		}
	}

	msg := FormattedMessage{
		Title:       fmt.Sprintf("Race finished · %s · %s", shortID(ev.MatchID, shortIDLimit), fallback(ev.Source, "race")),
		Content:     fmt.Sprintf("%s wins", fallback(winner.Username, winner.UserID)),
		Description: fmt.Sprintf("%s won a %d-player race.", fallback(winner.Username, winner.UserID), len(ev.Players)),
		Color:       colorFinished,
		Timestamp:   eventTimestamp(ev.ServerTS),
		Footer:      defaultFooter,
	}
	if len(ev.Players) == 2 {
		msg.Color = colorWin
	}
	fields := make([]MessageField, 0, len(ev.Players))
	for _, p := range ev.Players {
		fields = append(fields, MessageField{
			Name:   fmt.Sprintf("#%d %s", p.Position, fallback(p.Username, p.UserID)),
			Value:  playerLine(p),
			Inline: false,
		})
	}
	msg.Fields = fields
	return msg, true
}

func playerLine(p PlayerResult) string {
	timeText := "DNF"
	if !p.DNF && p.FinishTimeMS != nil {
		timeText = formatDuration(*p.FinishTimeMS)
	}
	return fmt.Sprintf("%s · rating %d (%s)", timeText, p.NewRating, signed(p.Delta))
}

func formatDuration(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 2, 64) + "s"
}

func signed(v int) string {
	if v >= 0 {
		return "+" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}

func shortID(v string, max int) string {
	if max <= 0 || len(v) <= max {
		return v
	}
	return v[:max]
}

func eventTimestamp(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func fallback(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}
