// Package coordinator owns every live race room and drives it from creation
// through countdown and racing to a settled, persisted result.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tap-racer/internal/protocol"
	"tap-racer/internal/race"
	"tap-racer/internal/rating"
	"tap-racer/internal/store"
)

const (
	defaultCountdown   = 3000 * time.Millisecond
	defaultJoinTimeout = 30 * time.Second
	defaultRetryMax    = 5
	defaultRetryBase   = 200 * time.Millisecond
	recentOutcomeLimit = 256
)

// Persister is the durable side of finalize.
type Persister interface {
	CommitMatch(ctx context.Context, m store.MatchRecord) error
}

// Broadcaster delivers encoded messages to sessions and room groups.
type Broadcaster interface {
	Send(sessionID string, msg []byte) bool
	Publish(group string, msg []byte)
	PublishExcept(group, skipSessionID string, msg []byte)
	Subscribe(group, sessionID string)
	Unsubscribe(group, sessionID string)
	DropGroup(group string)
}

// Outcome is the settled result of a race. It is identical on every call to
// Finalize for the same match.
type Outcome struct {
	Snapshot race.Snapshot  `json:"snapshot"`
	Results  []rating.Result `json:"results"`
	Source   string          `json:"source"`
}

type roomRuntime struct {
	mu      sync.Mutex
	room    *race.Room
	source  string
	joined  map[string]bool
	timer   *time.Timer
	outcome *Outcome
}

type Option func(*Coordinator)

func WithCountdown(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.countdown = d
		}
	}
}

// WithJoinTimeout bounds how long a created room waits for every connected
// player to send join_race before it is aborted. Zero disables the deadline.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.joinTimeout = d
		}
	}
}

func WithPersistRetry(max int, base time.Duration) Option {
	return func(c *Coordinator) {
		if max > 0 {
			c.retryMax = max
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

type Coordinator struct {
	store Persister
	bus   Broadcaster

	countdown   time.Duration
	joinTimeout time.Duration
	retryMax    int
	retryBase time.Duration
	now       func() time.Time
	sleep     func(context.Context, time.Duration) bool

	mu          sync.Mutex
	rooms       map[string]*roomRuntime
	byUser      map[string]string
	recent      map[string]*Outcome
	recentOrder []string

	parkedMu sync.Mutex
	parked   []store.MatchRecord

	finalizeHooks []func(Outcome)
}

func New(st Persister, bus Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     st,
		bus:       bus,
		countdown:   defaultCountdown,
		joinTimeout: defaultJoinTimeout,
		retryMax:  defaultRetryMax,
		retryBase: defaultRetryBase,
		now:       time.Now,
		sleep:     sleepCtx,
		rooms:     map[string]*roomRuntime{},
		byUser:    map[string]string{},
		recent:    map[string]*Outcome{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnFinalize registers fn to run after each race settles, outside any lock.
// Hooks must be registered before races start.
func (c *Coordinator) OnFinalize(fn func(Outcome)) {
	c.finalizeHooks = append(c.finalizeHooks, fn)
}

// CreateRace builds a room for entrants, subscribes their sessions to the
// room group and announces the match to them.
func (c *Coordinator) CreateRace(ctx context.Context, matchID, source string, entrants []race.Entrant) (race.Snapshot, error) {
	room, err := race.NewRoom(matchID, entrants, c.now())
	if err != nil {
		return race.Snapshot{}, err
	}
	rt := &roomRuntime{room: room, source: source, joined: map[string]bool{}}

	c.mu.Lock()
	if _, ok := c.rooms[matchID]; ok {
		c.mu.Unlock()
		return race.Snapshot{}, ErrRaceExists
	}
	for _, e := range entrants {
		if _, busy := c.byUser[e.UserID]; busy {
			c.mu.Unlock()
			return race.Snapshot{}, ErrPlayerBusy
		}
	}
	c.rooms[matchID] = rt
	for _, e := range entrants {
		c.byUser[e.UserID] = matchID
	}
	rt.mu.Lock()
	c.mu.Unlock()
	defer rt.mu.Unlock()

	players := make([]protocol.MatchPlayer, 0, len(entrants))
	for _, p := range room.Players {
		c.bus.Subscribe(room.Channel, p.SessionID)
		players = append(players, protocol.MatchPlayer{UserID: p.UserID, Username: p.Username, Rating: p.Rating})
	}
	c.bus.Publish(room.Channel, protocol.Encode(protocol.MatchFound{
		Type:            "match_found",
		ProtocolVersion: protocol.ProtocolVersion,
		MatchID:         matchID,
		Players:         players,
	}))
	if c.joinTimeout > 0 {
		rt.timer = time.AfterFunc(c.joinTimeout, func() { c.joinExpired(matchID) })
	}
	metricRacesCreated.Add(1)
	metricRacesLive.Add(1)
	log.Info().Str("match_id", matchID).Str("source", source).Int("players", len(entrants)).Msg("race_created")
	return room.Snapshot(), nil
}

// JoinRace acknowledges a player entering the room. Once every player has
// joined, the countdown starts.
func (c *Coordinator) JoinRace(ctx context.Context, matchID, sessionID string) error {
	rt := c.lookup(matchID)
	if rt == nil {
		return ErrRaceNotFound
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.room.Finished() {
		return ErrRaceFinished
	}
	p := rt.room.PlayerBySession(sessionID)
	if p == nil {
		return ErrNotInRace
	}
	rt.joined[p.UserID] = true
	c.bus.Subscribe(rt.room.Channel, sessionID)
	c.bus.Send(sessionID, protocol.Encode(protocol.NewNotice("race_joined", matchID, p.UserID)))
	if rt.room.State == race.StateCreated && c.allJoinedLocked(rt) {
		c.startCountdownLocked(rt, c.now())
	}
	return nil
}

// joinExpired aborts a room that is still waiting for players to join.
func (c *Coordinator) joinExpired(matchID string) {
	rt := c.lookup(matchID)
	if rt == nil {
		return
	}
	rt.mu.Lock()
	aborted := false
	if rt.room.State == race.StateCreated {
		aborted = c.abortLocked(rt, "join_timeout")
	}
	rt.mu.Unlock()
	if aborted {
		c.remove(rt)
	}
}

// allJoinedLocked is true when every connected player has joined the room.
func (c *Coordinator) allJoinedLocked(rt *roomRuntime) bool {
	connected := 0
	for _, p := range rt.room.Players {
		if !p.Connected {
			continue
		}
		connected++
		if !rt.joined[p.UserID] {
			return false
		}
	}
	return connected > 0
}

// StartCountdown moves the room into countdown at t0. Racing begins after
// the configured delay on a one-shot timer.
func (c *Coordinator) StartCountdown(matchID string, t0 time.Time) error {
	rt := c.lookup(matchID)
	if rt == nil {
		return ErrRaceNotFound
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.room.Finished() {
		return ErrRaceFinished
	}
	c.startCountdownLocked(rt, t0)
	return nil
}

func (c *Coordinator) startCountdownLocked(rt *roomRuntime, t0 time.Time) {
	if !rt.room.BeginCountdown(t0) {
		return
	}
	if rt.timer != nil {
		rt.timer.Stop()
	}
	matchID := rt.room.ID
	c.bus.Publish(rt.room.Channel, protocol.Encode(protocol.CountdownStart{
		Type:            "countdown_start",
		ProtocolVersion: protocol.ProtocolVersion,
		MatchID:         matchID,
		CountdownStart:  t0.UnixMilli(),
		DurationMS:      c.countdown.Milliseconds(),
	}))
	rt.timer = time.AfterFunc(c.countdown, func() { c.startRace(matchID) })
	log.Info().Str("match_id", matchID).Msg("race_countdown")
}

// startRace is the countdown timer body. It takes the same room lock as taps
// so the transition is serialised with everything else on the room. A room
// with nobody left to move is settled on the spot.
func (c *Coordinator) startRace(matchID string) {
	rt := c.lookup(matchID)
	if rt == nil {
		return
	}
	rt.mu.Lock()
	now := c.now()
	if !rt.room.BeginRace(now) {
		rt.mu.Unlock()
		return
	}
	c.bus.Publish(rt.room.Channel, protocol.Encode(protocol.RaceStart{
		Type:            "race_start",
		ProtocolVersion: protocol.ProtocolVersion,
		MatchID:         matchID,
		RaceStart:       now.UnixMilli(),
	}))
	log.Info().Str("match_id", matchID).Msg("race_start")
	var rec *store.MatchRecord
	if c.shouldFinalize(rt.room) || !anyConnected(rt.room) {
		rec = c.finalizeLocked(rt)
	}
	rt.mu.Unlock()
	c.afterFinalize(rt, rec)
}

// RecordTap applies one tap. Taps for unknown or finished rooms, unknown
// sessions and same-side repeats are dropped without error.
func (c *Coordinator) RecordTap(ctx context.Context, matchID, sessionID string, side race.Side) {
	rt := c.lookup(matchID)
	if rt == nil {
		return
	}
	rt.mu.Lock()
	now := c.now()
	if _, advanced := rt.room.Tap(sessionID, side, now); !advanced {
		rt.mu.Unlock()
		return
	}
	metricTaps.Add(1)
	c.bus.Publish(rt.room.Channel, protocol.Encode(protocol.NewRaceUpdate(rt.room.Snapshot(), now.UnixMilli())))
	var rec *store.MatchRecord
	if c.shouldFinalize(rt.room) {
		rec = c.finalizeLocked(rt)
	}
	rt.mu.Unlock()
	c.afterFinalize(rt, rec)
}

// shouldFinalize is true once the finish threshold is met. Rooms of more
// than two also end when every connected player is home, since nobody left
// can move the count.
func (c *Coordinator) shouldFinalize(room *race.Room) bool {
	if room.ThresholdReached() {
		return true
	}
	if len(room.Players) <= 2 {
		return false
	}
	for _, p := range room.Players {
		if p.Connected && !p.Finished() {
			return false
		}
	}
	return true
}

// Finalize settles the race. Calling it again returns the first outcome.
func (c *Coordinator) Finalize(ctx context.Context, matchID string) (Outcome, error) {
	rt := c.lookup(matchID)
	if rt == nil {
		c.mu.Lock()
		out := c.recent[matchID]
		c.mu.Unlock()
		if out == nil {
			return Outcome{}, ErrRaceNotFound
		}
		return *out, nil
	}
	rt.mu.Lock()
	rec := c.finalizeLocked(rt)
	out := rt.outcome
	rt.mu.Unlock()
	c.afterFinalize(rt, rec)
	if out == nil {
		return Outcome{}, ErrRaceFinished
	}
	return *out, nil
}

// finalizeLocked closes the room, settles ratings and publishes race_end. It
// returns the record to persist, or nil if the room was already closed.
func (c *Coordinator) finalizeLocked(rt *roomRuntime) *store.MatchRecord {
	room := rt.room
	if !room.Finalize() {
		return nil
	}
	if rt.timer != nil {
		rt.timer.Stop()
	}
	for _, p := range room.Players {
		if !p.Finished() && !p.Connected {
			p.DNF = true
			metricDNF.Add(1)
		}
	}
	standings := room.Standings()
	input := make([]rating.Standing, 0, len(standings))
	for _, p := range standings {
		input = append(input, rating.Standing{UserID: p.UserID, Rating: p.Rating, Position: *p.FinishPosition})
	}
	results := rating.Field(input)
	snap := room.Snapshot()
	rt.outcome = &Outcome{Snapshot: snap, Results: results, Source: rt.source}

	c.bus.Publish(room.Channel, protocol.Encode(protocol.NewRaceEnd(snap, results)))
	metricRacesFinalized.Add(1)
	log.Info().
		Str("match_id", room.ID).
		Int("players", len(room.Players)).
		Int("finished", room.FinishedCount()).
		Int("threshold", room.Threshold()).
		Msg("race_finalized")

	deltas := make(map[string]int, len(results))
	for _, r := range results {
		deltas[r.UserID] = r.Delta
	}
	rec := &store.MatchRecord{
		ID:            room.ID,
		Source:        rt.source,
		Threshold:     room.Threshold(),
		CreatedAt:     room.StartedAt,
		RaceStartedAt: room.RaceStart,
		EndedAt:       c.now(),
		Players:       make([]store.MatchPlayerRecord, 0, len(standings)),
	}
	for _, p := range standings {
		rec.Players = append(rec.Players, store.MatchPlayerRecord{
			UserID:       p.UserID,
			Username:     p.Username,
			Position:     *p.FinishPosition,
			Steps:        p.Steps,
			Distance:     p.Distance(),
			FinishTimeMS: p.FinishTimeMS,
			DNF:          p.DNF,
			RatingBefore: p.Rating,
			RatingDelta:  deltas[p.UserID],
		})
	}
	return rec
}

func (c *Coordinator) afterFinalize(rt *roomRuntime, rec *store.MatchRecord) {
	if rec == nil {
		return
	}
	c.mu.Lock()
	c.rememberLocked(rt.room.ID, rt.outcome)
	for _, p := range rt.room.Players {
		if c.byUser[p.UserID] == rt.room.ID {
			delete(c.byUser, p.UserID)
		}
	}
	c.mu.Unlock()
	for _, fn := range c.finalizeHooks {
		fn(*rt.outcome)
	}
	go c.persist(rt, *rec)
}

// HandleDisconnect reacts to the loss of sessionID for userID. Sessions that
// no longer speak for the player are ignored.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userID, sessionID string) {
	matchID, ok := c.ActiveRace(userID)
	if !ok {
		return
	}
	rt := c.lookup(matchID)
	if rt == nil {
		return
	}
	rt.mu.Lock()
	room := rt.room
	p := room.PlayerByUser(userID)
	if p == nil || p.SessionID != sessionID || room.Finished() {
		rt.mu.Unlock()
		return
	}
	p.Connected = false
	c.bus.Unsubscribe(room.Channel, sessionID)
	log.Info().Str("match_id", matchID).Str("user_id", userID).Str("state", string(room.State)).Msg("race_player_disconnected")

	var rec *store.MatchRecord
	aborted := false
	switch {
	case len(room.Players) == 2 && room.State == race.StateCreated:
		aborted = c.abortLocked(rt, "player_disconnected")
	case len(room.Players) == 2:
		for _, other := range room.Players {
			if other != p {
				room.ForceFinish(other, c.now())
			}
		}
		rec = c.finalizeLocked(rt)
	default:
		c.bus.Publish(room.Channel, protocol.Encode(protocol.NewNotice("player_disconnected", matchID, userID)))
		switch room.State {
		case race.StateCreated:
			if c.allJoinedLocked(rt) {
				c.startCountdownLocked(rt, c.now())
			} else if !anyConnected(room) {
				aborted = c.abortLocked(rt, "all_players_disconnected")
			}
		case race.StateCountdown:
			if !anyConnected(room) {
				aborted = c.abortLocked(rt, "all_players_disconnected")
			}
		case race.StateRacing:
			if c.shouldFinalize(room) {
				rec = c.finalizeLocked(rt)
			}
		}
	}
	rt.mu.Unlock()
	if aborted {
		c.remove(rt)
		return
	}
	c.afterFinalize(rt, rec)
}

func anyConnected(room *race.Room) bool {
	for _, p := range room.Players {
		if p.Connected {
			return true
		}
	}
	return false
}

func (c *Coordinator) abortLocked(rt *roomRuntime, reason string) bool {
	if !rt.room.Abort() {
		return false
	}
	if rt.timer != nil {
		rt.timer.Stop()
	}
	msg := protocol.NewNotice("race_aborted", rt.room.ID, "")
	msg.Reason = reason
	c.bus.Publish(rt.room.Channel, protocol.Encode(msg))
	metricRacesAborted.Add(1)
	log.Warn().Str("match_id", rt.room.ID).Str("reason", reason).Msg("race_aborted")
	return true
}

// Rejoin rebinds userID's player to sessionID, sends the new session a full
// snapshot and tells the rest of the room.
func (c *Coordinator) Rejoin(ctx context.Context, matchID, userID, sessionID string) error {
	rt := c.lookup(matchID)
	if rt == nil {
		return ErrRaceNotFound
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	room := rt.room
	if room.Finished() {
		return ErrRaceFinished
	}
	p := room.PlayerByUser(userID)
	if p == nil {
		return ErrNotInRace
	}
	if old := p.SessionID; old != sessionID {
		c.bus.Unsubscribe(room.Channel, old)
	}
	p.SessionID = sessionID
	p.Connected = true
	rt.joined[userID] = true
	c.bus.Subscribe(room.Channel, sessionID)

	now := c.now()
	c.bus.Send(sessionID, protocol.Encode(protocol.NewRaceSnapshot(room.Snapshot(), userID, room.ElapsedMS(now))))
	c.bus.PublishExcept(room.Channel, sessionID, protocol.Encode(protocol.NewNotice("player_rejoined", matchID, userID)))
	log.Info().Str("match_id", matchID).Str("user_id", userID).Str("session_id", sessionID).Msg("race_player_rejoined")
	return nil
}

func (c *Coordinator) Snapshot(matchID string) (race.Snapshot, bool) {
	rt := c.lookup(matchID)
	if rt == nil {
		return race.Snapshot{}, false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.room.Snapshot(), true
}

// LiveRaces lists every room that has not finished, oldest first.
func (c *Coordinator) LiveRaces() []race.Snapshot {
	c.mu.Lock()
	rts := make([]*roomRuntime, 0, len(c.rooms))
	for _, rt := range c.rooms {
		rts = append(rts, rt)
	}
	c.mu.Unlock()

	out := make([]race.Snapshot, 0, len(rts))
	for _, rt := range rts {
		rt.mu.Lock()
		if !rt.room.Finished() {
			out = append(out, rt.room.Snapshot())
		}
		rt.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAtMS == out[j].StartedAtMS {
			return out[i].MatchID < out[j].MatchID
		}
		return out[i].StartedAtMS < out[j].StartedAtMS
	})
	return out
}

func (c *Coordinator) ActiveRace(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byUser[userID]
	return id, ok
}

// RecentOutcome returns the settled result of a recently finished race.
func (c *Coordinator) RecentOutcome(matchID string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.recent[matchID]
	if out == nil {
		return Outcome{}, false
	}
	return *out, true
}

func (c *Coordinator) lookup(matchID string) *roomRuntime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[matchID]
}

func (c *Coordinator) remove(rt *roomRuntime) {
	c.mu.Lock()
	if c.rooms[rt.room.ID] == rt {
		delete(c.rooms, rt.room.ID)
		metricRacesLive.Add(-1)
	}
	for _, p := range rt.room.Players {
		if c.byUser[p.UserID] == rt.room.ID {
			delete(c.byUser, p.UserID)
		}
	}
	c.mu.Unlock()
	c.bus.DropGroup(rt.room.Channel)
}

func (c *Coordinator) rememberLocked(matchID string, out *Outcome) {
	if _, ok := c.recent[matchID]; ok {
		return
	}
	c.recent[matchID] = out
	c.recentOrder = append(c.recentOrder, matchID)
	if len(c.recentOrder) > recentOutcomeLimit {
		evict := c.recentOrder[0]
		c.recentOrder = c.recentOrder[1:]
		delete(c.recent, evict)
	}
}
