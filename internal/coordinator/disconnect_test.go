package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tap-racer/internal/race"
)

func positionOf(t *testing.T, snap race.Snapshot, userID string) race.PlayerView {
	t.Helper()
	for _, p := range snap.Players {
		if p.UserID == userID {
			if p.FinishPosition == nil {
				t.Fatalf("player %s has no position", userID)
			}
			return p
		}
	}
	t.Fatalf("player %s not in snapshot", userID)
	return race.PlayerView{}
}

func TestFourPlayerDisconnectRankedAfterFinishers(t *testing.T) {
	st := newFakeStore(0)
	c, bus, clock := newTestCoordinator(st)
	ctx := context.Background()
	startedRace(t, c, clock, "m1", 4)

	tapN(c, clock, "m1", "s4", 100)
	c.HandleDisconnect(ctx, "u4", "s4")
	if bus.count("s1", "race_end") != 0 {
		t.Fatal("race ended on a single disconnect")
	}

	tapToFinish(c, clock, "m1", "s1")
	tapToFinish(c, clock, "m1", "s2")
	if snap, _ := c.Snapshot("m1"); snap.Finished {
		t.Fatal("race ended before the threshold")
	}
	tapToFinish(c, clock, "m1", "s3")
	if bus.count("s1", "race_end") != 1 {
		t.Fatalf("race_end count = %d, want 1", bus.count("s1", "race_end"))
	}

	out, err := c.Finalize(ctx, "m1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	for i := 1; i <= 3; i++ {
		p := positionOf(t, out.Snapshot, fmt.Sprintf("u%d", i))
		if *p.FinishPosition != i || p.DNF || !p.Finished {
			t.Fatalf("finisher u%d = %+v", i, p)
		}
	}
	gone := positionOf(t, out.Snapshot, "u4")
	if *gone.FinishPosition != 4 || !gone.DNF || gone.Finished || gone.Steps != 100 {
		t.Fatalf("disconnected player = %+v", gone)
	}
	if len(out.Results) != 4 {
		t.Fatalf("results = %+v", out.Results)
	}

	st.waitCommit(t, "m1")
	for _, p := range st.committed()[0].Players {
		if p.DNF != (p.UserID == "u4") {
			t.Fatalf("persisted DNF for %s = %v", p.UserID, p.DNF)
		}
	}
}

func TestRaceEndsWhenEveryConnectedPlayerFinished(t *testing.T) {
	st := newFakeStore(0)
	c, bus, clock := newTestCoordinator(st)
	ctx := context.Background()
	startedRace(t, c, clock, "m1", 6)

	tapN(c, clock, "m1", "s5", 10)
	tapN(c, clock, "m1", "s6", 30)
	c.HandleDisconnect(ctx, "u5", "s5")
	c.HandleDisconnect(ctx, "u6", "s6")

	for i := 1; i <= 3; i++ {
		tapToFinish(c, clock, "m1", fmt.Sprintf("s%d", i))
	}
	if bus.count("s1", "race_end") != 0 {
		t.Fatal("race ended while a connected player was still running")
	}
	tapToFinish(c, clock, "m1", "s4")
	if bus.count("s1", "race_end") != 1 {
		t.Fatal("race did not end once every connected player finished")
	}

	out, err := c.Finalize(ctx, "m1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if out.Snapshot.Threshold != 6 {
		t.Fatalf("threshold = %d, want 6", out.Snapshot.Threshold)
	}
	further := positionOf(t, out.Snapshot, "u6")
	behind := positionOf(t, out.Snapshot, "u5")
	if *further.FinishPosition != 5 || *behind.FinishPosition != 6 {
		t.Fatalf("dropouts ranked %d and %d, want 5 and 6", *further.FinishPosition, *behind.FinishPosition)
	}
	if !further.DNF || !behind.DNF {
		t.Fatal("dropouts not marked DNF")
	}
	st.waitCommit(t, "m1")
}

func TestLastRunnerDisconnectSettlesRace(t *testing.T) {
	st := newFakeStore(0)
	c, bus, clock := newTestCoordinator(st)
	ctx := context.Background()
	startedRace(t, c, clock, "m1", 3)

	tapToFinish(c, clock, "m1", "s1")
	tapToFinish(c, clock, "m1", "s2")
	c.HandleDisconnect(ctx, "u3", "s3")
	if bus.count("s1", "race_end") != 1 {
		t.Fatal("race not settled when the last runner left")
	}
	st.waitCommit(t, "m1")
	if _, ok := c.ActiveRace("u1"); ok {
		t.Fatal("finisher still bound")
	}
}

func TestEveryoneDisconnectsDuringCountdownAborts(t *testing.T) {
	st := newFakeStore(0)
	c, bus, _ := newTestCoordinator(st)
	ctx := context.Background()
	if _, err := c.CreateRace(ctx, "m1", "queue", testEntrants(3)); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := c.JoinRace(ctx, "m1", fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if snap, _ := c.Snapshot("m1"); snap.State != race.StateCountdown {
		t.Fatalf("state = %s, want countdown", snap.State)
	}

	c.HandleDisconnect(ctx, "u1", "s1")
	c.HandleDisconnect(ctx, "u2", "s2")
	if _, ok := c.Snapshot("m1"); !ok {
		t.Fatal("room removed while a player was still connected")
	}
	c.HandleDisconnect(ctx, "u3", "s3")

	if _, ok := c.Snapshot("m1"); ok {
		t.Fatal("abandoned room still live")
	}
	for i := 1; i <= 3; i++ {
		if _, ok := c.ActiveRace(fmt.Sprintf("u%d", i)); ok {
			t.Fatalf("u%d still bound to abandoned room", i)
		}
	}
	c.startRace("m1")
	if len(c.LiveRaces()) != 0 || len(st.committed()) != 0 {
		t.Fatal("abandoned room came back to life")
	}
	if bus.count("s3", "race_start") != 0 {
		t.Fatal("race_start sent for abandoned room")
	}
}

func TestRaceStartWithNobodyConnectedSettles(t *testing.T) {
	st := newFakeStore(0)
	c, _, _ := newTestCoordinator(st)
	ctx := context.Background()
	if _, err := c.CreateRace(ctx, "m1", "queue", testEntrants(3)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.StartCountdown("m1", time.Now()); err != nil {
		t.Fatalf("countdown: %v", err)
	}
	rt := c.lookup("m1")
	rt.mu.Lock()
	for _, p := range rt.room.Players {
		p.Connected = false
	}
	rt.mu.Unlock()

	c.startRace("m1")
	st.waitCommit(t, "m1")
	out, ok := c.RecentOutcome("m1")
	if !ok {
		t.Fatal("no outcome recorded")
	}
	for _, p := range out.Snapshot.Players {
		if !p.DNF {
			t.Fatalf("player %s not DNF", p.UserID)
		}
	}
	if _, ok := c.ActiveRace("u1"); ok {
		t.Fatal("player still bound after settle")
	}
}

func TestJoinTimeoutAbortsCreatedRoom(t *testing.T) {
	st := newFakeStore(0)
	bus := newFakeBus()
	c := New(st, bus, WithJoinTimeout(20*time.Millisecond), WithCountdown(time.Hour))
	ctx := context.Background()
	if _, err := c.CreateRace(ctx, "m1", "queue", testEntrants(3)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.JoinRace(ctx, "m1", "s1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := c.ActiveRace("u1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("created room never timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
	var reason any
	for _, m := range bus.received("s1") {
		if m.typ == "race_aborted" {
			reason = m.body["reason"]
		}
	}
	if reason != "join_timeout" {
		t.Fatalf("abort reason = %v, want join_timeout", reason)
	}
	if _, ok := c.ActiveRace("u3"); ok {
		t.Fatal("player that never joined still bound")
	}
}

func TestJoinTimeoutStoppedByCountdown(t *testing.T) {
	st := newFakeStore(0)
	bus := newFakeBus()
	c := New(st, bus, WithJoinTimeout(20*time.Millisecond), WithCountdown(time.Hour))
	ctx := context.Background()
	if _, err := c.CreateRace(ctx, "m1", "queue", testEntrants(2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= 2; i++ {
		if err := c.JoinRace(ctx, "m1", fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	time.Sleep(80 * time.Millisecond)
	snap, ok := c.Snapshot("m1")
	if !ok || snap.State != race.StateCountdown {
		t.Fatalf("room after join deadline = %+v (live=%v)", snap, ok)
	}
	if bus.count("s1", "race_aborted") != 0 {
		t.Fatal("joined room aborted")
	}
}

func TestJoinTimeoutZeroDisablesDeadline(t *testing.T) {
	c := New(newFakeStore(0), newFakeBus(), WithJoinTimeout(0))
	if _, err := c.CreateRace(context.Background(), "m1", "queue", testEntrants(2)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rt := c.lookup("m1"); rt.timer != nil {
		t.Fatal("join deadline armed with timeout disabled")
	}
}
