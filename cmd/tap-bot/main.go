// Command tap-bot is a load and smoke-test client. It queues, joins every
// race it is matched into and taps alternating sides at a fixed interval.
package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tap-racer/internal/config"
	"tap-racer/internal/logging"
	"tap-racer/internal/protocol"
	"tap-racer/internal/race"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type bot struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	interval time.Duration
	requeue  bool
	userID   string

	stopMu  sync.Mutex
	stopTap chan struct{}
}

type envelope struct {
	Type         string            `json:"type"`
	MatchID      string            `json:"match_id"`
	UserID       string            `json:"user_id"`
	Code         string            `json:"code"`
	Results      []race.PlayerView `json:"results"`
	RatingDeltas json.RawMessage   `json:"rating_deltas"`
}

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadBot()
	if err != nil {
		log.Fatal().Err(err).Msg("load bot config failed")
	}

	header := http.Header{}
	if cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}
	conn, _, err := websocket.DefaultDialer.Dial(cfg.WSURL, header)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.WSURL).Msg("dial failed")
	}
	defer conn.Close()

	b := &bot{conn: conn, interval: cfg.TapInterval(), requeue: cfg.Requeue}
	b.run()
}

func (b *bot) run() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Msg("connection closed")
			b.stopTapping()
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "connected":
			b.userID = msg.UserID
			log.Info().Str("user_id", msg.UserID).Msg("connected")
			b.send(protocol.Inbound{Type: protocol.TypeJoinQueue})
		case "match_found":
			log.Info().Str("match_id", msg.MatchID).Msg("match found")
			b.send(protocol.Inbound{Type: protocol.TypeJoinRace, MatchID: msg.MatchID})
		case "race_start":
			b.startTapping(msg.MatchID)
		case "race_end":
			b.stopTapping()
			log.Info().Str("match_id", msg.MatchID).Int("position", b.position(msg.Results)).
				RawJSON("rating_deltas", nonEmpty(msg.RatingDeltas)).Msg("race over")
			if b.requeue {
				b.send(protocol.Inbound{Type: protocol.TypeJoinQueue})
			}
		case "race_aborted":
			b.stopTapping()
			if b.requeue {
				b.send(protocol.Inbound{Type: protocol.TypeJoinQueue})
			}
		case "session_superseded":
			log.Warn().Msg("session superseded, exiting")
			b.stopTapping()
			return
		case "error":
			log.Warn().Str("code", msg.Code).Msg("server error")
		}
	}
}

func (b *bot) startTapping(matchID string) {
	b.stopMu.Lock()
	if b.stopTap != nil {
		close(b.stopTap)
	}
	stop := make(chan struct{})
	b.stopTap = stop
	b.stopMu.Unlock()

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		side := race.SideLeft
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !b.send(protocol.Inbound{Type: protocol.TypeTap, MatchID: matchID, Side: string(side)}) {
					return
				}
				if side == race.SideLeft {
					side = race.SideRight
				} else {
					side = race.SideLeft
				}
			}
		}
	}()
}

func (b *bot) stopTapping() {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopTap != nil {
		close(b.stopTap)
		b.stopTap = nil
	}
}

func (b *bot) send(msg protocol.Inbound) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Msg("write failed")
		return false
	}
	return true
}

func (b *bot) position(results []race.PlayerView) int {
	for _, r := range results {
		if r.UserID == b.userID && r.FinishPosition != nil {
			return *r.FinishPosition
		}
	}
	return 0
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
