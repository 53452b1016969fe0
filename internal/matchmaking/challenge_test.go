package matchmaking

import (
	"fmt"
	"testing"
)

func newTestChallenges() *Challenges {
	n := 0
	return NewChallenges(func() string {
		n++
		return fmt.Sprintf("ch%d", n)
	})
}

func TestChallengeRejectsSelf(t *testing.T) {
	c := newTestChallenges()
	if _, err := c.Create("a", "a"); err != ErrSelfChallenge {
		t.Fatalf("err = %v, want ErrSelfChallenge", err)
	}
}

func TestChallengeSupersedesSamePair(t *testing.T) {
	c := newTestChallenges()
	first, err := c.Create("a", "b")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, _ := c.Create("a", "b")
	if first.ID == second.ID {
		t.Fatal("superseding challenge reused id")
	}
	got, _ := c.Get("a", "b")
	if got.ID != second.ID || got.Status != ChallengePending {
		t.Fatalf("current challenge = %+v", got)
	}
	// reverse direction is a separate pair
	if _, err := c.Create("b", "a"); err != nil {
		t.Fatalf("reverse create: %v", err)
	}
	if got, _ := c.Get("a", "b"); got.Status != ChallengePending {
		t.Fatal("reverse challenge expired the forward one")
	}
}

func TestChallengeAcceptOnce(t *testing.T) {
	c := newTestChallenges()
	c.Create("a", "b")
	ch, err := c.Accept("a", "b")
	if err != nil || ch.Status != ChallengeAccepted {
		t.Fatalf("accept: %+v %v", ch, err)
	}
	if _, err := c.Accept("a", "b"); err != ErrChallengeNotFound {
		t.Fatalf("duplicate accept err = %v", err)
	}
	if _, err := c.Decline("a", "b"); err != ErrChallengeNotFound {
		t.Fatalf("decline after accept err = %v", err)
	}
	c.Reopen(ch.ID)
	if _, err := c.Accept("a", "b"); err != nil {
		t.Fatalf("accept after reopen: %v", err)
	}
}

func TestChallengeAcceptUnknown(t *testing.T) {
	c := newTestChallenges()
	if _, err := c.Accept("x", "y"); err != ErrChallengeNotFound {
		t.Fatalf("err = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeDecline(t *testing.T) {
	c := newTestChallenges()
	c.Create("a", "b")
	ch, err := c.Decline("a", "b")
	if err != nil || ch.Status != ChallengeDeclined {
		t.Fatalf("decline: %+v %v", ch, err)
	}
}

func TestChallengeExpireUser(t *testing.T) {
	c := newTestChallenges()
	c.Create("a", "b")
	c.Create("c", "a")
	c.Create("c", "d")
	expired := c.ExpireUser("a")
	if len(expired) != 2 {
		t.Fatalf("expired %d challenges, want 2", len(expired))
	}
	if got, _ := c.Get("c", "d"); got.Status != ChallengePending {
		t.Fatal("unrelated challenge expired")
	}
	if _, err := c.Accept("c", "a"); err != ErrChallengeNotFound {
		t.Fatal("expired challenge still acceptable")
	}
}
