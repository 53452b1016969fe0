package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tap-racer/internal/race"
	"tap-racer/internal/store"
)

type sentMessage struct {
	to   string
	typ  string
	body map[string]any
}

type fakeBus struct {
	mu      sync.Mutex
	groups  map[string]map[string]bool
	sent    []sentMessage
	dropped []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{groups: map[string]map[string]bool{}}
}

func (b *fakeBus) record(to string, msg []byte) {
	var body map[string]any
	_ = json.Unmarshal(msg, &body)
	typ, _ := body["type"].(string)
	b.sent = append(b.sent, sentMessage{to: to, typ: typ, body: body})
}

func (b *fakeBus) Send(sessionID string, msg []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(sessionID, msg)
	return true
}

func (b *fakeBus) Publish(group string, msg []byte) {
	b.PublishExcept(group, "", msg)
}

func (b *fakeBus) PublishExcept(group, skip string, msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sid := range b.groups[group] {
		if sid != skip {
			b.record(sid, msg)
		}
	}
}

func (b *fakeBus) Subscribe(group, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[group] == nil {
		b.groups[group] = map[string]bool{}
	}
	b.groups[group][sessionID] = true
}

func (b *fakeBus) Unsubscribe(group, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.groups[group], sessionID)
}

func (b *fakeBus) DropGroup(group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.groups, group)
	b.dropped = append(b.dropped, group)
}

// received lists message types delivered to sessionID in order.
func (b *fakeBus) received(sessionID string) []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentMessage
	for _, m := range b.sent {
		if m.to == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBus) count(sessionID, typ string) int {
	n := 0
	for _, m := range b.received(sessionID) {
		if m.typ == typ {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	commits   []store.MatchRecord
	done      chan string
}

func newFakeStore(failFirst int) *fakeStore {
	return &fakeStore{failFirst: failFirst, done: make(chan string, 16)}
}

func (s *fakeStore) CommitMatch(ctx context.Context, m store.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("db unavailable")
	}
	s.commits = append(s.commits, m)
	s.done <- m.ID
	return nil
}

func (s *fakeStore) committed() []store.MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.MatchRecord(nil), s.commits...)
}

func (s *fakeStore) waitCommit(t *testing.T, matchID string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case id := <-s.done:
			if id == matchID {
				return
			}
		case <-deadline:
			t.Fatalf("match %s was not committed", matchID)
		}
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCoordinator(st *fakeStore) (*Coordinator, *fakeBus, *testClock) {
	bus := newFakeBus()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(st, bus, WithCountdown(time.Hour), WithPersistRetry(3, time.Millisecond), WithClock(clock.Now))
	c.sleep = func(context.Context, time.Duration) bool { return true }
	return c, bus, clock
}

func testEntrants(n int) []race.Entrant {
	out := make([]race.Entrant, n)
	for i := range out {
		out[i] = race.Entrant{
			UserID:    fmt.Sprintf("u%d", i+1),
			Username:  fmt.Sprintf("user%d", i+1),
			Rating:    1200,
			SessionID: fmt.Sprintf("s%d", i+1),
		}
	}
	return out
}

// startedRace creates an n-player room and moves it straight to racing.
func startedRace(t *testing.T, c *Coordinator, clock *testClock, matchID string, n int) {
	t.Helper()
	ctx := context.Background()
	if _, err := c.CreateRace(ctx, matchID, "queue", testEntrants(n)); err != nil {
		t.Fatalf("create race: %v", err)
	}
	for i := 1; i <= n; i++ {
		if err := c.JoinRace(ctx, matchID, fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("join race: %v", err)
		}
	}
	clock.Advance(3 * time.Second)
	c.startRace(matchID)
	snap, _ := c.Snapshot(matchID)
	if snap.State != race.StateRacing {
		t.Fatalf("state = %s, want racing", snap.State)
	}
}

// tapToFinish alternates taps for sessionID until the player crosses the line.
func tapToFinish(c *Coordinator, clock *testClock, matchID, sessionID string) {
	sides := []race.Side{race.SideLeft, race.SideRight}
	for i := 0; i < 167; i++ {
		clock.Advance(10 * time.Millisecond)
		c.RecordTap(context.Background(), matchID, sessionID, sides[i%2])
	}
}
