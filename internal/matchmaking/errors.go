package matchmaking

import "errors"

var (
	ErrSelfChallenge     = errors.New("self_challenge")
	ErrChallengeNotFound = errors.New("challenge_not_found")
	ErrInvalidMatchSize  = errors.New("invalid_match_size")
)
