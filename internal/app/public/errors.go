package public

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRaceNotFound   = errors.New("race_not_found")
	ErrUserNotFound   = errors.New("user_not_found")
)
