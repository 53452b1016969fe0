package public

import (
	"context"
	"errors"
	"strings"

	"tap-racer/internal/coordinator"
	"tap-racer/internal/matchmaking"
	"tap-racer/internal/race"
	"tap-racer/internal/store"
)

// Store is the read side of the database used by public queries.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetMatch(ctx context.Context, id string) (*store.MatchRecord, error)
	ListRecentMatches(ctx context.Context, limit int) ([]store.MatchRecord, error)
	ListLeaderboard(ctx context.Context, limit, offset int) ([]store.LeaderboardEntry, error)
}

type Races interface {
	LiveRaces() []race.Snapshot
	Snapshot(matchID string) (race.Snapshot, bool)
	RecentOutcome(matchID string) (coordinator.Outcome, bool)
	ActiveRace(userID string) (string, bool)
}

type Lobby interface {
	QueueEntries() []matchmaking.Entry
	Online() int
}

type Service struct {
	store Store
	races Races
	lobby Lobby
}

const (
	leaderboardMaxRows = 100
	recentMatchesMax   = 100
)

func NewService(st Store, races Races, lobby Lobby) *Service {
	return &Service{store: st, races: races, lobby: lobby}
}

func (s *Service) Races(_ context.Context) (*RacesResponse, error) {
	items := s.races.LiveRaces()
	if items == nil {
		items = []race.Snapshot{}
	}
	return &RacesResponse{Items: items}, nil
}

// Race looks a match up in memory first and falls back to the stored record
// once the room has been persisted and dropped.
func (s *Service) Race(ctx context.Context, matchID string) (*RaceResponse, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, ErrInvalidRequest
	}
	resp := &RaceResponse{MatchID: matchID}
	if snap, ok := s.races.Snapshot(matchID); ok {
		resp.Live = !snap.Finished
		resp.State = &snap
	}
	if out, ok := s.races.RecentOutcome(matchID); ok {
		resp.Deltas = ratingItems(out)
	}
	if resp.State != nil {
		return resp, nil
	}
	rec, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRaceNotFound
	}
	if err != nil {
		return nil, err
	}
	item := matchItem(*rec)
	resp.Record = &item
	if resp.Deltas == nil {
		for _, p := range rec.Players {
			resp.Deltas = append(resp.Deltas, RatingItem{
				UserID:    p.UserID,
				Delta:     p.RatingDelta,
				NewRating: p.RatingBefore + p.RatingDelta,
			})
		}
	}
	return resp, nil
}

func (s *Service) Queue(_ context.Context) (*QueueResponse, error) {
	pending := s.lobby.QueueEntries()
	out := make([]QueueItem, 0, len(pending))
	for _, e := range pending {
		out = append(out, QueueItem{
			UserID:     e.UserID,
			Username:   e.Username,
			Rating:     e.Rating,
			EnqueuedAt: e.EnqueuedAt,
		})
	}
	return &QueueResponse{Items: out, Online: s.lobby.Online()}, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit, offset int) (*LeaderboardResponse, error) {
	if offset < 0 {
		return nil, ErrInvalidRequest
	}
	limit, ok := clampLeaderboardPage(limit, offset)
	if !ok {
		return &LeaderboardResponse{Items: []store.LeaderboardEntry{}, Limit: limit, Offset: offset}, nil
	}
	items, err := s.store.ListLeaderboard(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return &LeaderboardResponse{Items: items, Limit: limit, Offset: offset}, nil
}

func (s *Service) Player(ctx context.Context, userID string) (*PlayerResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	resp := &PlayerResponse{User: *u}
	if matchID, ok := s.races.ActiveRace(userID); ok {
		resp.ActiveMatchID = matchID
	}
	return resp, nil
}

func (s *Service) RecentMatches(ctx context.Context, limit int) (*MatchesResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > recentMatchesMax {
		limit = recentMatchesMax
	}
	recs, err := s.store.ListRecentMatches(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]MatchItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, matchItem(r))
	}
	return &MatchesResponse{Items: out, Limit: limit}, nil
}

func matchItem(r store.MatchRecord) MatchItem {
	players := r.Players
	if players == nil {
		players = []store.MatchPlayerRecord{}
	}
	return MatchItem{
		MatchID:       r.ID,
		Source:        r.Source,
		Threshold:     r.Threshold,
		CreatedAt:     r.CreatedAt,
		RaceStartedAt: r.RaceStartedAt,
		EndedAt:       r.EndedAt,
		Players:       players,
	}
}

func ratingItems(out coordinator.Outcome) []RatingItem {
	items := make([]RatingItem, 0, len(out.Results))
	for _, r := range out.Results {
		items = append(items, RatingItem{UserID: r.UserID, Delta: r.Delta, NewRating: r.NewRating})
	}
	return items
}

func clampLeaderboardPage(limit, offset int) (int, bool) {
	if offset >= leaderboardMaxRows {
		return 0, false
	}
	if limit <= 0 {
		limit = 50
	}
	remaining := leaderboardMaxRows - offset
	if limit > remaining {
		limit = remaining
	}
	return limit, true
}
