package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apppublic "tap-racer/internal/app/public"
	"tap-racer/internal/auth"
	"tap-racer/internal/broadcast"
	"tap-racer/internal/config"
	"tap-racer/internal/coordinator"
	"tap-racer/internal/lobby"
	"tap-racer/internal/logging"
	"tap-racer/internal/matchmaking"
	"tap-racer/internal/mcpserver"
	"tap-racer/internal/registry"
	"tap-racer/internal/resultpush"
	"tap-racer/internal/spectatorgateway"
	"tap-racer/internal/store"
	httptransport "tap-racer/internal/transport/http"
	"tap-racer/internal/ws"

	"github.com/rs/zerolog/log"
)

var metricOutboundDropped = expvar.NewInt("ws_outbound_dropped_total")

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	st, err := store.New(context.Background(), cfg.Server.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	hub := broadcast.NewHub()
	hub.OnDrop(func() { metricOutboundDropped.Add(1) })

	coord := coordinator.New(st, hub,
		coordinator.WithCountdown(cfg.Race.Countdown()),
		coordinator.WithJoinTimeout(cfg.Race.JoinTimeout()),
		coordinator.WithPersistRetry(cfg.Race.PersistRetryMax, cfg.Race.PersistRetryBase()),
	)
	lob := lobby.New(
		registry.New(),
		matchmaking.NewQueue(),
		matchmaking.NewChallenges(store.NewID),
		coord,
		hub,
		store.NewID,
		cfg.Race.QueueMatchSize,
	)
	coord.OnFinalize(lob.ApplyOutcome)

	pushCfg, err := resultpush.ConfigFromPush(cfg.Push)
	if err != nil {
		log.Fatal().Err(err).Msg("push config invalid")
	}
	pushCtx, stopPush := context.WithCancel(context.Background())
	defer stopPush()
	push := resultpush.NewManager(pushCfg)
	if err := push.Start(pushCtx); err != nil {
		log.Fatal().Err(err).Msg("push start failed")
	}
	coord.OnFinalize(push.OnRaceFinalized)

	tokens := auth.NewManager(cfg.Server.JWTSecret, cfg.Server.JWTTTL())
	wsSrv := ws.NewServer(lob, hub, tokens, st, cfg.Race.DefaultRating, cfg.Server.WSSendBuffer)
	publicSvc := apppublic.NewService(st, coord, lob)

	r := httptransport.NewRouter(httptransport.Deps{
		Store:         st,
		Public:        publicSvc,
		Parked:        coord,
		Tokens:        tokens,
		WS:            wsSrv.HandleWS,
		Spectate:      spectatorgateway.EventsHandler(coord, hub),
		MCP:           mcpserver.New(publicSvc).Handler(),
		AdminAPIKey:   cfg.Server.AdminAPIKey,
		DefaultRating: cfg.Race.DefaultRating,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	stopPush()
	if parked := coord.Parked(); len(parked) > 0 {
		ids := make([]string, 0, len(parked))
		for _, rec := range parked {
			ids = append(ids, rec.ID)
		}
		log.Warn().Strs("match_ids", ids).Msg("exiting with unpersisted races")
	}
}
