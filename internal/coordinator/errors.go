package coordinator

import "errors"

var (
	ErrRaceNotFound = errors.New("race_not_found")
	ErrRaceExists   = errors.New("race_exists")
	ErrRaceFinished = errors.New("race_finished")
	ErrNotInRace    = errors.New("not_in_race")
	ErrPlayerBusy   = errors.New("player_in_race")
)
