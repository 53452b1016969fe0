package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tap-racer/internal/auth"
	"tap-racer/internal/store"

	"github.com/rs/zerolog/log"
)

type AdminHandlers struct {
	store         AdminStore
	tokens        *auth.Manager
	parked        ParkedSource
	defaultRating int
}

func NewAdminHandlers(st AdminStore, tokens *auth.Manager, parked ParkedSource, defaultRating int) *AdminHandlers {
	return &AdminHandlers{store: st, tokens: tokens, parked: parked, defaultRating: defaultRating}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "db": "up"})
	}
}

// IssueToken provisions a user (creating it on first sight) and mints a
// session token for it. A missing user_id gets a fresh id.
func (h *AdminHandlers) IssueToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.tokens == nil {
			WriteHTTPError(w, http.StatusServiceUnavailable, "tokens_disabled")
			return
		}
		var body struct {
			UserID   string `json:"user_id"`
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		body.UserID = strings.TrimSpace(body.UserID)
		body.Username = strings.TrimSpace(body.Username)
		if body.Username == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if body.UserID == "" {
			body.UserID = store.NewID()
		}
		u, err := h.store.EnsureUser(r.Context(), body.UserID, body.Username, h.defaultRating)
		if errors.Is(err, store.ErrInvalidUsername) {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_username")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("user_id", body.UserID).Msg("ensure user failed")
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		token, err := h.tokens.Generate(u.ID, u.Username)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		metricTokensIssued.Add(1)
		writeJSON(w, map[string]any{"ok": true, "token": token, "user": u})
	}
}

func (h *AdminHandlers) ParkedRaces() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := []store.MatchRecord{}
		if h.parked != nil {
			items = append(items, h.parked.Parked()...)
		}
		writeJSON(w, map[string]any{"items": items})
	}
}
