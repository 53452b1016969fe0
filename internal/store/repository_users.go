package store

import (
	"context"
	"errors"
	"strings"
)

var ErrInvalidUsername = errors.New("invalid_username")

// EnsureUser inserts the user at initialRating on first sight and refreshes
// the username otherwise. The stored row is returned.
func (s *Store) EnsureUser(ctx context.Context, id, username string, initialRating int) (*User, error) {
	username = strings.TrimSpace(username)
	if id == "" || username == "" {
		return nil, ErrInvalidUsername
	}
	row := s.Pool.QueryRow(ctx, `
INSERT INTO users (id, username, rating)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, updated_at = now()
RETURNING id, username, rating, races_played, wins, created_at, updated_at`, id, username, initialRating)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Rating, &u.RacesPlayed, &u.Wins, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT id, username, rating, races_played, wins, created_at, updated_at
FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Rating, &u.RacesPlayed, &u.Wins, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

// AdjustRating applies delta to the stored rating and returns the new value.
func (s *Store) AdjustRating(ctx context.Context, userID string, delta int) (int, error) {
	var rating int
	err := s.Pool.QueryRow(ctx, `
UPDATE users SET rating = rating + $2, updated_at = now()
WHERE id = $1 RETURNING rating`, userID, delta).Scan(&rating)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return rating, nil
}

func (s *Store) ListLeaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
SELECT id, username, rating, races_played, wins
FROM users
ORDER BY rating DESC, races_played DESC, id ASC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LeaderboardEntry{}
	rank := offset
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Rating, &e.RacesPlayed, &e.Wins); err != nil {
			return nil, err
		}
		rank++
		e.Rank = rank
		out = append(out, e)
	}
	return out, rows.Err()
}
