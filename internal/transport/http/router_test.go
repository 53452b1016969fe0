package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apppublic "tap-racer/internal/app/public"
	"tap-racer/internal/auth"
	"tap-racer/internal/coordinator"
	"tap-racer/internal/matchmaking"
	"tap-racer/internal/race"
	"tap-racer/internal/store"
)

type fakeStore struct {
	pingErr error
	users   map[string]store.User
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) EnsureUser(_ context.Context, id, username string, rating int) (*store.User, error) {
	if username == "" {
		return nil, store.ErrInvalidUsername
	}
	u, ok := f.users[id]
	if !ok {
		u = store.User{ID: id, Username: username, Rating: rating}
	}
	u.Username = username
	f.users[id] = u
	return &u, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) GetMatch(context.Context, string) (*store.MatchRecord, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListRecentMatches(context.Context, int) ([]store.MatchRecord, error) {
	return []store.MatchRecord{}, nil
}

func (f *fakeStore) ListLeaderboard(_ context.Context, limit, offset int) ([]store.LeaderboardEntry, error) {
	return []store.LeaderboardEntry{{Rank: offset + 1, UserID: "u1", Rating: 1234}}, nil
}

type fakeRaces struct {
	live []race.Snapshot
}

func (f fakeRaces) LiveRaces() []race.Snapshot { return f.live }

func (f fakeRaces) Snapshot(id string) (race.Snapshot, bool) {
	for _, s := range f.live {
		if s.MatchID == id {
			return s, true
		}
	}
	return race.Snapshot{}, false
}

func (fakeRaces) RecentOutcome(string) (coordinator.Outcome, bool) { return coordinator.Outcome{}, false }
func (fakeRaces) ActiveRace(string) (string, bool)                 { return "", false }

type fakeLobby struct{}

func (fakeLobby) QueueEntries() []matchmaking.Entry {
	return []matchmaking.Entry{{UserID: "u2", Username: "bob", Rating: 1200, EnqueuedAt: time.Unix(1, 0)}}
}
func (fakeLobby) Online() int { return 2 }

type fakeParked struct{ recs []store.MatchRecord }

func (f fakeParked) Parked() []store.MatchRecord { return f.recs }

func newTestRouter(t *testing.T, st *fakeStore, tokens *auth.Manager) http.Handler {
	t.Helper()
	races := fakeRaces{live: []race.Snapshot{{MatchID: "m1", State: race.StateRacing, Threshold: 2}}}
	return NewRouter(Deps{
		Store:         st,
		Public:        apppublic.NewService(st, races, fakeLobby{}),
		Parked:        fakeParked{recs: []store.MatchRecord{{ID: "parked-1"}}},
		Tokens:        tokens,
		AdminAPIKey:   "admin-key",
		DefaultRating: 1200,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	st := &fakeStore{users: map[string]store.User{}}
	h := newTestRouter(t, st, nil)

	rec := doRequest(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["db"] != "up" {
		t.Fatalf("healthz up: %d %s", rec.Code, rec.Body.String())
	}

	st.pingErr = errors.New("down")
	rec = doRequest(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable || decodeBody(t, rec)["db"] != "down" {
		t.Fatalf("healthz down: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPublicRoutes(t *testing.T) {
	st := &fakeStore{users: map[string]store.User{"u1": {ID: "u1", Username: "alice", Rating: 1234}}}
	h := newTestRouter(t, st, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/public/races", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("races: %d", rec.Code)
	}
	if items, _ := decodeBody(t, rec)["items"].([]any); len(items) != 1 {
		t.Fatalf("expected one live race, got %s", rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/public/races/m1", nil, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["live"] != true {
		t.Fatalf("race m1: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/public/races/missing", nil, nil)
	if rec.Code != http.StatusNotFound || decodeBody(t, rec)["error"] != "race_not_found" {
		t.Fatalf("race missing: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/public/queue", nil, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["online"] != float64(2) {
		t.Fatalf("queue: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/public/leaderboard?limit=10&offset=5", nil, nil)
	body := decodeBody(t, rec)
	if rec.Code != http.StatusOK || body["limit"] != float64(10) || body["offset"] != float64(5) {
		t.Fatalf("leaderboard: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/public/users/u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("user: %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodGet, "/api/public/users/ghost", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ghost user: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/public/matches", nil, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["limit"] != float64(20) {
		t.Fatalf("matches: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminTokens(t *testing.T) {
	st := &fakeStore{users: map[string]store.User{}}
	tokens := auth.NewManager("test-secret", time.Hour)
	h := newTestRouter(t, st, tokens)

	payload := []byte(`{"username":"carol"}`)
	rec := doRequest(t, h, http.MethodPost, "/api/admin/tokens", payload, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/admin/tokens", payload, map[string]string{"X-Admin-Key": "admin-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("issue token: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Username != "carol" || claims.UserID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, ok := st.users[claims.UserID]; !ok {
		t.Fatal("user was not provisioned")
	}

	rec = doRequest(t, h, http.MethodPost, "/api/admin/tokens", []byte(`{"username":"  "}`), map[string]string{"Authorization": "Bearer admin-key"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank username: %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/admin/tokens", []byte(`{`), map[string]string{"X-Admin-Key": "admin-key"})
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "invalid_json" {
		t.Fatalf("bad json: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminParkedAndDebugVars(t *testing.T) {
	h := newTestRouter(t, &fakeStore{users: map[string]store.User{}}, nil)
	hdr := map[string]string{"X-Admin-Key": "admin-key"}

	rec := doRequest(t, h, http.MethodGet, "/api/admin/races/parked", nil, hdr)
	if items, _ := decodeBody(t, rec)["items"].([]any); rec.Code != http.StatusOK || len(items) != 1 {
		t.Fatalf("parked: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/debug/vars", nil, hdr)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("http_public_query_total")) {
		t.Fatalf("debug vars: %d", rec.Code)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=0", 1, 0},
		{"?limit=1000", 100, 0},
		{"?limit=abc&offset=-3", 50, 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
		limit, offset := ParsePagination(req)
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Fatalf("%q: got %d/%d want %d/%d", tt.query, limit, offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestCheckAdminAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if CheckAdminAuth(req, "k") {
		t.Fatal("expected no auth")
	}
	req.Header.Set("Authorization", "Bearer k")
	if !CheckAdminAuth(req, "k") {
		t.Fatal("expected bearer auth")
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Admin-Key", "k")
	if !CheckAdminAuth(req, "k") {
		t.Fatal("expected header auth")
	}
}
