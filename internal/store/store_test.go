package store

import (
	"context"
	"testing"
)

func TestNewRejectsBadDSN(t *testing.T) {
	st, err := New(context.Background(), "postgres://racer@localhost:notaport/races")
	if err == nil {
		st.Close()
		t.Fatal("expected error for malformed dsn")
	}
}
