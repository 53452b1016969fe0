// Package spectatorgateway streams a race to read-only spectators over
// server-sent events.
package spectatorgateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tap-racer/internal/race"
	"tap-racer/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

var (
	pingInterval = 15 * time.Second
	sendBuffer   = 64
)

type Races interface {
	Snapshot(matchID string) (race.Snapshot, bool)
}

// Hub is the subset of the broadcast hub a spectator needs. A spectator is
// registered as its own session so it receives exactly what the players do.
type Hub interface {
	Register(sessionID string, send chan []byte)
	Unregister(sessionID string)
	Subscribe(group, sessionID string)
}

func EventsHandler(races Races, hub Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "match_id")
		flusher, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		// Subscribe before reading the snapshot so no update falls between them.
		sessionID := "spectator:" + store.NewID()
		ch := make(chan []byte, sendBuffer)
		hub.Register(sessionID, ch)
		hub.Subscribe(race.ChannelFor(matchID), sessionID)
		defer hub.Unregister(sessionID)

		snap, ok := races.Snapshot(matchID)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"race_not_found"}`))
			return
		}

		metricSpectatorSSEConnectionsTotal.Add(1)
		metricSpectatorSSEConnectionsActive.Add(1)
		defer metricSpectatorSSEConnectionsActive.Add(-1)
		log.Debug().Str("match_id", matchID).Str("session_id", sessionID).Msg("spectator_joined")

		setSSEHeaders(w)
		var seq int64
		next := func(name string, data []byte) event {
			seq++
			return event{ID: seq, Name: name, Data: data}
		}

		initial, err := json.Marshal(snap)
		if err != nil {
			return
		}
		if err := writeSSE(w, next("snapshot", initial)); err != nil {
			return
		}
		flusher.Flush()
		if snap.Finished {
			return
		}

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case msg := <-ch:
				name := messageType(msg)
				if err := writeSSE(w, next(name, msg)); err != nil {
					return
				}
				flusher.Flush()
				if name == "race_end" || name == "race_aborted" {
					return
				}
			case <-ticker.C:
				ping := fmt.Sprintf(`{"ts":%d}`, time.Now().UnixMilli())
				if err := writeSSE(w, next("ping", []byte(ping))); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func messageType(msg []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}
