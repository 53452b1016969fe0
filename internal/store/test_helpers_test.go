package store_test

import (
	"context"
	"testing"

	"tap-racer/internal/store"
)

func mustEnsureUser(t *testing.T, st *store.Store, ctx context.Context, username string, rating int) string {
	t.Helper()
	id := store.NewID()
	if _, err := st.EnsureUser(ctx, id, username, rating); err != nil {
		t.Fatalf("ensure user %s: %v", username, err)
	}
	return id
}
