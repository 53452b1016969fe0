package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tap-racer/internal/store"
	"tap-racer/internal/testutil"
)

func sampleMatch(winner, loser string) store.MatchRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	started := now.Add(-10 * time.Second)
	finish := int64(7000)
	return store.MatchRecord{
		ID:            store.NewID(),
		Source:        "queue",
		Threshold:     2,
		CreatedAt:     started.Add(-3 * time.Second),
		RaceStartedAt: &started,
		EndedAt:       now,
		Players: []store.MatchPlayerRecord{
			{UserID: winner, Position: 1, Steps: 167, Distance: 100.2, FinishTimeMS: &finish, RatingBefore: 1200, RatingDelta: 10},
			{UserID: loser, Position: 2, Steps: 0, Distance: 0, DNF: true, RatingBefore: 1200, RatingDelta: -10},
		},
	}
}

func TestCommitMatchAppliesRatings(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()

	a := mustEnsureUser(t, st, ctx, "a", 1200)
	b := mustEnsureUser(t, st, ctx, "b", 1200)
	m := sampleMatch(a, b)
	if err := st.CommitMatch(ctx, m); err != nil {
		t.Fatalf("commit: %v", err)
	}
	ua, _ := st.GetUser(ctx, a)
	ub, _ := st.GetUser(ctx, b)
	if ua.Rating != 1210 || ub.Rating != 1190 {
		t.Fatalf("ratings = %d/%d, want 1210/1190", ua.Rating, ub.Rating)
	}
	if ua.RacesPlayed != 1 || ua.Wins != 1 || ub.Wins != 0 {
		t.Fatalf("counters a=%+v b=%+v", ua, ub)
	}

	got, err := st.GetMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if len(got.Players) != 2 || got.Players[0].UserID != a || !got.Players[1].DNF {
		t.Fatalf("unexpected players %+v", got.Players)
	}
	if got.Players[0].FinishTimeMS == nil || *got.Players[0].FinishTimeMS != 7000 {
		t.Fatalf("finish time not stored: %+v", got.Players[0])
	}
}

func TestCommitMatchIsIdempotent(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()

	a := mustEnsureUser(t, st, ctx, "a", 1200)
	b := mustEnsureUser(t, st, ctx, "b", 1200)
	m := sampleMatch(a, b)
	for i := 0; i < 2; i++ {
		if err := st.CommitMatch(ctx, m); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	ua, _ := st.GetUser(ctx, a)
	if ua.Rating != 1210 || ua.RacesPlayed != 1 {
		t.Fatalf("retried commit applied twice: %+v", ua)
	}
}

func TestCommitMatchRollsBackOnUnknownUser(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()

	a := mustEnsureUser(t, st, ctx, "a", 1200)
	m := sampleMatch(a, "ghost")
	if err := st.CommitMatch(ctx, m); err == nil {
		t.Fatal("expected commit error for unknown user")
	}
	if _, err := st.GetMatch(ctx, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("match survived rollback: %v", err)
	}
	ua, _ := st.GetUser(ctx, a)
	if ua.Rating != 1200 {
		t.Fatalf("rating changed despite rollback: %d", ua.Rating)
	}
}

func TestListRecentMatches(t *testing.T) {
	st, ctx := testutil.OpenTestStore(t), context.Background()

	a := mustEnsureUser(t, st, ctx, "a", 1200)
	b := mustEnsureUser(t, st, ctx, "b", 1200)
	first := sampleMatch(a, b)
	second := sampleMatch(b, a)
	second.EndedAt = first.EndedAt.Add(time.Second)
	if err := st.CommitMatch(ctx, first); err != nil {
		t.Fatalf("commit first: %v", err)
	}
	if err := st.CommitMatch(ctx, second); err != nil {
		t.Fatalf("commit second: %v", err)
	}
	items, err := st.ListRecentMatches(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || len(items[0].Players) != 2 {
		t.Fatalf("unexpected recent matches: %+v", items)
	}
}
