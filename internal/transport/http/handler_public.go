package httptransport

import (
	"errors"
	"net/http"

	apppublic "tap-racer/internal/app/public"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type PublicHandlers struct {
	publicSvc *apppublic.Service
}

func NewPublicHandlers(publicSvc *apppublic.Service) *PublicHandlers {
	return &PublicHandlers{publicSvc: publicSvc}
}

func (h *PublicHandlers) Races() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricPublicQueryTotal.Add(1)
		resp, err := h.publicSvc.Races(r.Context())
		if err != nil {
			writePublicError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *PublicHandlers) Race() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricPublicQueryTotal.Add(1)
		resp, err := h.publicSvc.Race(r.Context(), chi.URLParam(r, "match_id"))
		if err != nil {
			writePublicError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *PublicHandlers) Queue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricPublicQueryTotal.Add(1)
		resp, err := h.publicSvc.Queue(r.Context())
		if err != nil {
			writePublicError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *PublicHandlers) Leaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricPublicQueryTotal.Add(1)
		limit, offset := ParsePagination(r)
		resp, err := h.publicSvc.Leaderboard(r.Context(), limit, offset)
		if err != nil {
			writePublicError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *PublicHandlers) Player() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricPublicQueryTotal.Add(1)
		resp, err := h.publicSvc.Player(r.Context(), chi.URLParam(r, "user_id"))
		if err != nil {
			writePublicError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *PublicHandlers) Matches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricPublicQueryTotal.Add(1)
		limit, _ := ParsePagination(r)
		if r.URL.Query().Get("limit") == "" {
			limit = 0
		}
		resp, err := h.publicSvc.RecentMatches(r.Context(), limit)
		if err != nil {
			writePublicError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func writePublicError(w http.ResponseWriter, err error) {
	metricPublicQueryErrors.Add(1)
	switch {
	case errors.Is(err, apppublic.ErrInvalidRequest):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, apppublic.ErrRaceNotFound):
		WriteHTTPError(w, http.StatusNotFound, "race_not_found")
	case errors.Is(err, apppublic.ErrUserNotFound):
		WriteHTTPError(w, http.StatusNotFound, "user_not_found")
	default:
		log.Error().Err(err).Msg("public query failed")
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
