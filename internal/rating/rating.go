// Package rating settles skill ratings from a finished race.
package rating

import (
	"math"
)

// BaseK is the two-player K-factor. Larger fields scale it down by KFactor.
const BaseK = 32.0

type Outcome float64

const (
	Loss Outcome = 0
	Draw Outcome = 0.5
	Win  Outcome = 1
)

// Standing is one player's place in a finished race. Position is 1-based.
type Standing struct {
	UserID   string
	Rating   int
	Position int
}

type Result struct {
	UserID    string `json:"user_id"`
	Delta     int    `json:"delta"`
	NewRating int    `json:"new_rating"`
}

// Expected is the logistic expected score of a player rated ra against rb.
func Expected(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))
}

// Calc returns the rating delta for a player rated ra after a head-to-head
// outcome against a player rated rb.
func Calc(ra, rb int, outcome Outcome) int {
	return delta(BaseK, float64(outcome), Expected(float64(ra), float64(rb)))
}

// KFactor scales BaseK by field size so that bigger races swing less.
func KFactor(n int) float64 {
	if n < 2 {
		return 0
	}
	return BaseK / math.Log2(float64(n)+1)
}

// Field computes deltas for every player in a race of N >= 2 players.
//
// Each player's expectation is taken against the mean rating of the whole
// field, the player included, rather than pairwise against every opponent.
// The mean is not proven fair for very skewed fields.
func Field(standings []Standing) []Result {
	n := len(standings)
	if n < 2 {
		return nil
	}
	k := KFactor(n)
	total := 0
	for _, s := range standings {
		total += s.Rating
	}
	out := make([]Result, 0, n)
	mean := float64(total) / float64(n)
	for _, s := range standings {
		exp := Expected(float64(s.Rating), mean)
		d := delta(k, actualScore(s.Position, n), exp)
		out = append(out, Result{UserID: s.UserID, Delta: d, NewRating: s.Rating + d})
	}
	return out
}

// actualScore maps a 1-based finish position onto [0, 1]: first place scores
// 1.0 and last place scores 0.
func actualScore(position, n int) float64 {
	if position < 1 {
		position = 1
	}
	if position > n {
		position = n
	}
	return 1.0 - float64(position-1)/float64(n-1)
}

func delta(k, actual, expected float64) int {
	return int(math.Round(k * (actual - expected)))
}
