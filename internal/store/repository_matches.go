package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateMatch inserts the match row. It reports false when the match was
// already recorded, which makes a retried commit a no-op.
func (s *Store) CreateMatch(ctx context.Context, tx pgx.Tx, m MatchRecord) (bool, error) {
	tag, err := tx.Exec(ctx, `
INSERT INTO matches (id, source, threshold, player_count, created_at, race_started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		m.ID, textParam(m.Source), m.Threshold, len(m.Players), m.CreatedAt, timeParam(m.RaceStartedAt), m.EndedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RecordMatchPlayers(ctx context.Context, tx pgx.Tx, matchID string, players []MatchPlayerRecord) error {
	batch := &pgx.Batch{}
	for _, p := range players {
		batch.Queue(`
INSERT INTO match_players (match_id, user_id, position, steps, distance, finish_time_ms, dnf, rating_before, rating_delta)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			matchID, p.UserID, p.Position, p.Steps, p.Distance, int8PtrParam(p.FinishTimeMS), p.DNF, p.RatingBefore, p.RatingDelta)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func adjustRatingTx(ctx context.Context, tx pgx.Tx, userID string, delta int, won bool) error {
	wins := 0
	if won {
		wins = 1
	}
	tag, err := tx.Exec(ctx, `
UPDATE users
SET rating = rating + $2, races_played = races_played + 1, wins = wins + $3, updated_at = now()
WHERE id = $1`, userID, delta, wins)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CommitMatch records the match, its players and every rating change in one
// transaction. Committing the same match twice leaves the first write intact.
func (s *Store) CommitMatch(ctx context.Context, m MatchRecord) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	inserted, err := s.CreateMatch(ctx, tx, m)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	if err := s.RecordMatchPlayers(ctx, tx, m.ID, m.Players); err != nil {
		return err
	}
	for _, p := range m.Players {
		if err := adjustRatingTx(ctx, tx, p.UserID, p.RatingDelta, p.Position == 1 && !p.DNF); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetMatch(ctx context.Context, id string) (*MatchRecord, error) {
	var (
		m       MatchRecord
		source  pgtype.Text
		started pgtype.Timestamptz
	)
	err := s.Pool.QueryRow(ctx, `
SELECT id, source, threshold, created_at, race_started_at, ended_at
FROM matches WHERE id = $1`, id).Scan(&m.ID, &source, &m.Threshold, &m.CreatedAt, &started, &m.EndedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	m.Source = textVal(source)
	m.RaceStartedAt = timePtrVal(started)
	players, err := s.listMatchPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Players = players
	return &m, nil
}

func (s *Store) ListRecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `
SELECT id, source, threshold, created_at, race_started_at, ended_at
FROM matches ORDER BY ended_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out := []MatchRecord{}
	for rows.Next() {
		var (
			m       MatchRecord
			source  pgtype.Text
			started pgtype.Timestamptz
		)
		if err := rows.Scan(&m.ID, &source, &m.Threshold, &m.CreatedAt, &started, &m.EndedAt); err != nil {
			rows.Close()
			return nil, err
		}
		m.Source = textVal(source)
		m.RaceStartedAt = timePtrVal(started)
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		players, err := s.listMatchPlayers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Players = players
	}
	return out, nil
}

func (s *Store) listMatchPlayers(ctx context.Context, matchID string) ([]MatchPlayerRecord, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT mp.user_id, u.username, mp.position, mp.steps, mp.distance, mp.finish_time_ms, mp.dnf, mp.rating_before, mp.rating_delta
FROM match_players mp JOIN users u ON u.id = mp.user_id
WHERE mp.match_id = $1
ORDER BY mp.position ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MatchPlayerRecord{}
	for rows.Next() {
		var (
			p      MatchPlayerRecord
			finish pgtype.Int8
		)
		if err := rows.Scan(&p.UserID, &p.Username, &p.Position, &p.Steps, &p.Distance, &finish, &p.DNF, &p.RatingBefore, &p.RatingDelta); err != nil {
			return nil, err
		}
		p.FinishTimeMS = int64PtrVal(finish)
		out = append(out, p)
	}
	return out, rows.Err()
}
