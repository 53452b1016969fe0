// Package resultpush delivers finished race results to chat and generic
// webhooks through a bounded worker pool with retry and a per-target
// circuit breaker.
package resultpush

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"tap-racer/internal/coordinator"
	"tap-racer/internal/resultpush/platforms"
)

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

type Manager struct {
	cfg      Config
	router   Router
	adapters map[string]platforms.Adapter
	now      func() time.Time

	dispatchCh chan pushJob
	retryQ     *retryQueue
	done       chan struct{}

	mu           sync.Mutex
	started      bool
	breakerByKey map[string]breakerState
}

func NewManager(cfg Config) *Manager {
	client := platforms.NewHTTPClient(cfg.RequestTimeout)
	adapters := map[string]platforms.Adapter{}
	for _, a := range []platforms.Adapter{
		platforms.NewDiscordAdapter(client),
		platforms.NewFeishuAdapter(client),
		platforms.NewWebhookAdapter(client),
	} {
		adapters[a.Name()] = a
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 512
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}

	m := &Manager{
		cfg:          cfg,
		adapters:     adapters,
		now:          time.Now,
		dispatchCh:   make(chan pushJob, cfg.DispatchBuffer),
		done:         make(chan struct{}),
		breakerByKey: map[string]breakerState{},
	}
	m.retryQ = newRetryQueue(m.dispatchCh, m.done)
	return m
}

// Start launches the workers and, when a config file is set, the reload
// loop. Everything stops when ctx is cancelled. Disabled managers do nothing.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		go m.worker(ctx)
	}
	if m.cfg.ConfigPath != "" {
		go m.watchConfigLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		close(m.done)
	}()
	log.Info().
		Int("workers", m.cfg.Workers).
		Int("targets", len(m.currentTargets())).
		Msg("race_push_started")
	return nil
}

// OnRaceFinalized is registered as a coordinator finalize hook. It never
// blocks: jobs that do not fit the dispatch buffer are dropped.
func (m *Manager) OnRaceFinalized(out coordinator.Outcome) {
	if !m.cfg.Enabled || out.Snapshot.MatchID == "" {
		return
	}
	ev := buildEvent(out, m.now())
	targets := m.router.MatchTargets(m.currentTargets(), ev)
	if len(targets) == 0 {
		return
	}
	formatted, _ := FormatMessage(ev)
	for _, target := range targets {
		if !m.enqueue(pushJob{Target: target, Event: ev, Formatted: formatted}) {
			metricPushDropped.Add(1)
		}
	}
}

func buildEvent(out coordinator.Outcome, now time.Time) RaceEvent {
	byUser := make(map[string]int, len(out.Results))
	newRating := make(map[string]int, len(out.Results))
	for _, r := range out.Results {
		byUser[r.UserID] = r.Delta
		newRating[r.UserID] = r.NewRating
	}
	players := make([]PlayerResult, 0, len(out.Snapshot.Players))
	for _, p := range out.Snapshot.Players {
		pr := PlayerResult{
			UserID:       p.UserID,
			Username:     p.Username,
			DNF:          p.DNF,
			Delta:        byUser[p.UserID],
			NewRating:    p.Rating,
			FinishTimeMS: p.FinishTimeMS,
		}
		if r, ok := newRating[p.UserID]; ok {
			pr.NewRating = r
		}
		if p.FinishPosition != nil {
			pr.Position = *p.FinishPosition
		}
		players = append(players, pr)
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Position < players[j].Position
	})
	return RaceEvent{
		EventID:   ulid.Make().String(),
		EventType: EventRaceFinished,
		ServerTS:  now.UnixMilli(),
		MatchID:   out.Snapshot.MatchID,
		Source:    out.Source,
		Threshold: out.Snapshot.Threshold,
		Players:   players,
	}
}

func (m *Manager) enqueue(job pushJob) bool {
	select {
	case <-m.done:
		return false
	case m.dispatchCh <- job:
		metricPushQueued.Add(1)
		metricPushQueueLen.Set(int64(len(m.dispatchCh)))
		return true
	default:
		return false
	}
}

func (m *Manager) currentTargets() []PushTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushTarget, len(m.cfg.Targets))
	copy(out, m.cfg.Targets)
	return out
}

func (m *Manager) setTargets(targets []PushTarget) {
	m.mu.Lock()
	m.cfg.Targets = targets
	m.mu.Unlock()
}

// watchConfigLoop polls ConfigPath and swaps the target list when the file
// changes. A file that fails to parse leaves the previous targets in place.
func (m *Manager) watchConfigLoop(ctx context.Context) {
	interval := m.cfg.ConfigReload
	if interval <= 0 {
		interval = time.Second
	}
	lastRaw := ""
	if raw, err := os.ReadFile(m.cfg.ConfigPath); err == nil {
		lastRaw = strings.TrimSpace(string(raw))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			raw, err := os.ReadFile(m.cfg.ConfigPath)
			if err != nil {
				metricPushReloadErrors.Add(1)
				continue
			}
			nextRaw := strings.TrimSpace(string(raw))
			if nextRaw == lastRaw {
				continue
			}
			targets, err := parseTargetsJSON(nextRaw)
			if err != nil {
				metricPushReloadErrors.Add(1)
				log.Warn().Err(err).Str("path", m.cfg.ConfigPath).Msg("race_push_reload_failed")
				continue
			}
			m.setTargets(targets)
			lastRaw = nextRaw
			metricPushReload.Add(1)
			log.Info().Int("targets", len(targets)).Msg("race_push_reloaded")
		}
	}
}
