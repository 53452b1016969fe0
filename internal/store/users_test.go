package store_test

import (
	"context"
	"errors"
	"testing"

	"tap-racer/internal/store"
	"tap-racer/internal/testutil"
)

func TestStorePing(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestEnsureUserKeepsRating(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()

	id := mustEnsureUser(t, st, ctx, "alice", 1200)
	if _, err := st.AdjustRating(ctx, id, 25); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	u, err := st.EnsureUser(ctx, id, "alice2", 1200)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if u.Rating != 1225 || u.Username != "alice2" {
		t.Fatalf("unexpected user after re-ensure: %+v", u)
	}
	if _, err := st.EnsureUser(ctx, id, "  ", 1200); !errors.Is(err, store.ErrInvalidUsername) {
		t.Fatalf("blank username err = %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()
	if _, err := st.GetUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
	if _, err := st.AdjustRating(ctx, "missing", 5); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("adjust missing user err = %v", err)
	}
}

func TestLeaderboardOrder(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()

	low := mustEnsureUser(t, st, ctx, "low", 1100)
	high := mustEnsureUser(t, st, ctx, "high", 1300)
	mid := mustEnsureUser(t, st, ctx, "mid", 1200)

	items, err := st.ListLeaderboard(ctx, 10, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(items))
	}
	want := []string{high, mid, low}
	for i, e := range items {
		if e.UserID != want[i] || e.Rank != i+1 {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}
	page, err := st.ListLeaderboard(ctx, 1, 1)
	if err != nil || len(page) != 1 || page[0].UserID != mid || page[0].Rank != 2 {
		t.Fatalf("paged leaderboard = %+v, %v", page, err)
	}
}
