// Package lobby turns session control messages into queue, challenge and
// race operations. It is the only place that checks whether a session still
// speaks for its user.
package lobby

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"tap-racer/internal/coordinator"
	"tap-racer/internal/matchmaking"
	"tap-racer/internal/protocol"
	"tap-racer/internal/race"
	"tap-racer/internal/registry"
)

var (
	ErrSessionSuperseded = errors.New("session_superseded")
	ErrAlreadyInRace     = errors.New("already_in_race")
	ErrTargetOffline     = errors.New("target_offline")
)

const (
	SourceQueue     = "queue"
	SourceChallenge = "challenge"
)

// Races is the slice of the coordinator the lobby drives.
type Races interface {
	CreateRace(ctx context.Context, matchID, source string, entrants []race.Entrant) (race.Snapshot, error)
	JoinRace(ctx context.Context, matchID, sessionID string) error
	RecordTap(ctx context.Context, matchID, sessionID string, side race.Side)
	Rejoin(ctx context.Context, matchID, userID, sessionID string) error
	HandleDisconnect(ctx context.Context, userID, sessionID string)
	ActiveRace(userID string) (string, bool)
}

type Sender interface {
	Send(sessionID string, msg []byte) bool
	Broadcast(msg []byte)
}

type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type Lobby struct {
	registry   *registry.Registry
	queue      *matchmaking.Queue
	challenges *matchmaking.Challenges
	races      Races
	bus        Sender
	newID      func() string
	matchSize  int

	matchMu sync.Mutex

	mu       sync.RWMutex
	profiles map[string]Profile
}

func New(reg *registry.Registry, q *matchmaking.Queue, ch *matchmaking.Challenges, races Races, bus Sender, newID func() string, matchSize int) *Lobby {
	if matchSize < race.MinPlayers {
		matchSize = race.MinPlayers
	}
	if matchSize > race.MaxPlayers {
		matchSize = race.MaxPlayers
	}
	return &Lobby{
		registry:   reg,
		queue:      q,
		challenges: ch,
		races:      races,
		bus:        bus,
		newID:      newID,
		matchSize:  matchSize,
		profiles:   map[string]Profile{},
	}
}

// Connect binds sessionID to the user and returns the session it superseded.
func (l *Lobby) Connect(ctx context.Context, p Profile, sessionID string) string {
	l.mu.Lock()
	l.profiles[p.UserID] = p
	l.mu.Unlock()
	prev := l.registry.Register(p.UserID, sessionID)
	if prev != "" {
		log.Info().Str("user_id", p.UserID).Str("session_id", sessionID).Str("superseded", prev).Msg("session_superseded")
	}
	return prev
}

// Disconnect handles the loss of a session. A superseded session has no
// effect; otherwise the user leaves the queue, their pending challenges
// expire and any live race is told.
func (l *Lobby) Disconnect(ctx context.Context, userID, sessionID string) {
	if !l.registry.Unregister(userID, sessionID) {
		return
	}
	if l.queue.Leave(userID) {
		l.broadcastQueue()
	}
	for _, ch := range l.challenges.ExpireUser(userID) {
		other := ch.ChallengerID
		if other == userID {
			other = ch.OpponentID
		}
		if sid, ok := l.registry.Resolve(other); ok {
			msg := protocol.NewNotice("challenge_unavailable", "", userID)
			msg.Reason = "player_offline"
			l.bus.Send(sid, protocol.Encode(msg))
		}
	}
	l.races.HandleDisconnect(ctx, userID, sessionID)
}

func (l *Lobby) JoinQueue(ctx context.Context, userID, sessionID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	if _, busy := l.races.ActiveRace(userID); busy {
		return ErrAlreadyInRace
	}
	p := l.Profile(userID)
	l.queue.Join(userID, p.Username, p.Rating)
	l.bus.Send(sessionID, protocol.Encode(protocol.NewNotice("queue_joined", "", userID)))
	l.broadcastQueue()
	l.tryMatch(ctx)
	return nil
}

func (l *Lobby) LeaveQueue(ctx context.Context, userID, sessionID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	left := l.queue.Leave(userID)
	l.bus.Send(sessionID, protocol.Encode(protocol.NewNotice("queue_left", "", userID)))
	if left {
		l.broadcastQueue()
	}
	return nil
}

// tryMatch turns waiting players into races until the queue runs short. A
// group with a player who is no longer connected is dissolved: the rest go
// back in line and the missing ones are cancelled.
func (l *Lobby) tryMatch(ctx context.Context) {
	l.matchMu.Lock()
	defer l.matchMu.Unlock()
	for {
		group, err := l.queue.MatchCandidates(l.matchSize)
		if err != nil || len(group) == 0 {
			return
		}
		entrants := make([]race.Entrant, 0, len(group))
		var present, missing []string
		for _, e := range group {
			sid, ok := l.registry.Resolve(e.UserID)
			if !ok {
				missing = append(missing, e.UserID)
				continue
			}
			present = append(present, e.UserID)
			entrants = append(entrants, race.Entrant{UserID: e.UserID, Username: e.Username, Rating: e.Rating, SessionID: sid})
		}
		if len(missing) > 0 {
			log.Warn().Strs("missing", missing).Strs("requeued", present).Msg("match_aborted_missing_session")
			l.queue.Requeue(present...)
			l.queue.Cancel(missing...)
			l.broadcastQueue()
			continue
		}
		matchID := l.newID()
		if _, err := l.races.CreateRace(ctx, matchID, SourceQueue, entrants); err != nil {
			log.Warn().Err(err).Str("match_id", matchID).Strs("players", present).Msg("match_create_failed")
			l.queue.Requeue(present...)
			l.broadcastQueue()
			return
		}
		l.queue.Release(present...)
		l.broadcastQueue()
	}
}

func (l *Lobby) SendChallenge(ctx context.Context, userID, sessionID, targetUserID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	if userID == targetUserID {
		return matchmaking.ErrSelfChallenge
	}
	targetSID, ok := l.registry.Resolve(targetUserID)
	if !ok {
		return ErrTargetOffline
	}
	if _, err := l.challenges.Create(userID, targetUserID); err != nil {
		return err
	}
	l.bus.Send(sessionID, protocol.Encode(protocol.ChallengeSent{
		Type:            "challenge_sent",
		ProtocolVersion: protocol.ProtocolVersion,
		TargetUserID:    targetUserID,
	}))
	l.bus.Send(targetSID, protocol.Encode(protocol.ChallengeReceived{
		Type:            "challenge_received",
		ProtocolVersion: protocol.ProtocolVersion,
		FromUserID:      userID,
		FromRating:      l.Profile(userID).Rating,
	}))
	return nil
}

// AcceptChallenge starts a two-player race from fromUserID's challenge. A
// challenge that is gone, or whose challenger can no longer race, yields a
// neutral challenge_unavailable instead of an error.
func (l *Lobby) AcceptChallenge(ctx context.Context, userID, sessionID, fromUserID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	ch, err := l.challenges.Accept(fromUserID, userID)
	if err != nil {
		l.unavailable(sessionID, fromUserID, "challenge_not_found")
		return nil
	}
	fromSID, ok := l.registry.Resolve(fromUserID)
	if !ok {
		log.Warn().Str("challenge_id", ch.ID).Str("user_id", fromUserID).Msg("challenge_accept_offline")
		l.unavailable(sessionID, fromUserID, "player_offline")
		return nil
	}
	challenger := l.Profile(fromUserID)
	opponent := l.Profile(userID)
	entrants := []race.Entrant{
		{UserID: challenger.UserID, Username: challenger.Username, Rating: challenger.Rating, SessionID: fromSID},
		{UserID: opponent.UserID, Username: opponent.Username, Rating: opponent.Rating, SessionID: sessionID},
	}
	matchID := l.newID()
	if _, err := l.races.CreateRace(ctx, matchID, SourceChallenge, entrants); err != nil {
		log.Warn().Err(err).Str("challenge_id", ch.ID).Msg("challenge_race_create_failed")
		l.challenges.Reopen(ch.ID)
		l.unavailable(sessionID, fromUserID, "player_busy")
		return nil
	}
	left := l.queue.Leave(fromUserID)
	if l.queue.Leave(userID) || left {
		l.broadcastQueue()
	}
	return nil
}

func (l *Lobby) DeclineChallenge(ctx context.Context, userID, sessionID, fromUserID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	if _, err := l.challenges.Decline(fromUserID, userID); err != nil {
		return nil
	}
	if sid, ok := l.registry.Resolve(fromUserID); ok {
		l.bus.Send(sid, protocol.Encode(protocol.ChallengeDeclined{
			Type:            "challenge_declined",
			ProtocolVersion: protocol.ProtocolVersion,
			ByUserID:        userID,
		}))
	}
	return nil
}

func (l *Lobby) JoinRace(ctx context.Context, userID, sessionID, matchID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	return l.races.JoinRace(ctx, matchID, sessionID)
}

// Tap forwards a tap from the current session. Taps from superseded
// sessions are dropped like any other stale input.
func (l *Lobby) Tap(ctx context.Context, userID, sessionID, matchID string, side race.Side) {
	if !l.registry.IsCurrent(userID, sessionID) {
		return
	}
	l.races.RecordTap(ctx, matchID, sessionID, side)
}

func (l *Lobby) Rejoin(ctx context.Context, userID, sessionID, matchID string) error {
	if !l.registry.IsCurrent(userID, sessionID) {
		return ErrSessionSuperseded
	}
	return l.races.Rejoin(ctx, matchID, userID, sessionID)
}

// ApplyOutcome refreshes cached ratings once a race settles.
func (l *Lobby) ApplyOutcome(out coordinator.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range out.Results {
		if p, ok := l.profiles[r.UserID]; ok {
			p.Rating = r.NewRating
			l.profiles[r.UserID] = p
		}
	}
}

func (l *Lobby) Profile(userID string) Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[userID]
	if !ok {
		return Profile{UserID: userID, Username: userID}
	}
	return p
}

func (l *Lobby) QueueEntries() []matchmaking.Entry {
	return l.queue.Pending()
}

func (l *Lobby) Online() int {
	return l.registry.Online()
}

func (l *Lobby) unavailable(sessionID, fromUserID, reason string) {
	msg := protocol.NewNotice("challenge_unavailable", "", fromUserID)
	msg.Reason = reason
	l.bus.Send(sessionID, protocol.Encode(msg))
}

func (l *Lobby) broadcastQueue() {
	pending := l.queue.Pending()
	entries := make([]protocol.QueueEntry, 0, len(pending))
	for _, e := range pending {
		entries = append(entries, protocol.QueueEntry{UserID: e.UserID, Rating: e.Rating})
	}
	l.bus.Broadcast(protocol.Encode(protocol.QueueUpdate{
		Type:            "queue_update",
		ProtocolVersion: protocol.ProtocolVersion,
		Entries:         entries,
	}))
}
