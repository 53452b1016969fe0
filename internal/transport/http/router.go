package httptransport

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	apppublic "tap-racer/internal/app/public"
	"tap-racer/internal/auth"
	"tap-racer/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// AdminStore is the slice of the database the admin and health routes need.
type AdminStore interface {
	Ping(ctx context.Context) error
	EnsureUser(ctx context.Context, id, username string, initialRating int) (*store.User, error)
}

type ParkedSource interface {
	Parked() []store.MatchRecord
}

type Deps struct {
	Store         AdminStore
	Public        *apppublic.Service
	Parked        ParkedSource
	Tokens        *auth.Manager
	WS            http.HandlerFunc
	Spectate      http.HandlerFunc
	MCP           http.Handler
	AdminAPIKey   string
	DefaultRating int
}

func NewRouter(d Deps) *chi.Mux {
	publicHandlers := NewPublicHandlers(d.Public)
	adminHandlers := NewAdminHandlers(d.Store, d.Tokens, d.Parked, d.DefaultRating)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	if d.WS != nil {
		r.With(APILogMiddleware()).Get("/ws", d.WS)
	}
	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", d.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/public/races", publicHandlers.Races())
		r.Get("/public/races/{match_id}", publicHandlers.Race())
		if d.Spectate != nil {
			r.Get("/public/races/{match_id}/events", d.Spectate)
		}
		r.Get("/public/queue", publicHandlers.Queue())
		r.Get("/public/leaderboard", publicHandlers.Leaderboard())
		r.Get("/public/users/{user_id}", publicHandlers.Player())
		r.Get("/public/matches", publicHandlers.Matches())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminAPIKey))
			r.Post("/admin/tokens", adminHandlers.IssueToken())
			r.Get("/admin/races/parked", adminHandlers.ParkedRaces())

			r.Route("/debug", func(r chi.Router) {
				r.Use(BodyCaptureMiddleware(4096))
				r.Get("/vars", expvar.Handler().ServeHTTP)
			})
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
