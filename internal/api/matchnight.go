package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/mkaplan/matchnight/internal/config"
	"github.com/mkaplan/matchnight/internal/database"
	"github.com/mkaplan/matchnight/internal/gateway"
	"github.com/mkaplan/matchnight/internal/realtime"
	"github.com/mkaplan/matchnight/internal/stats"
	"github.com/mkaplan/matchnight/internal/timer"
)

type MatchnightApp struct {
	log            *log.Logger
	db             database.EventStore
	mux            *http.Server
	registry       *realtime.Registry
	gateway        *gateway.Gateway
	rounds         *timer.RoundEngine
	countdowns     *timer.CountdownEngine
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewMatchnightApp(mux *http.ServeMux, logger *log.Logger, cfg *config.Config, db database.EventStore,
	rg *realtime.Registry, gw *gateway.Gateway, re *timer.RoundEngine, ce *timer.CountdownEngine,
	sp stats.StatsProvider) *MatchnightApp {
	s := &MatchnightApp{
		log:            logger,
		db:             db,
		registry:       rg,
		gateway:        gw,
		rounds:         re,
		countdowns:     ce,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/healthz", s.health)

	mux.Handle("POST /api/rounds/{id}/timer/start", s.authMiddleware(s.startRoundTimer))
	mux.Handle("POST /api/rounds/{id}/timer/stop", s.authMiddleware(s.stopRoundTimer))
	mux.Handle("GET /api/rounds/{id}/timer", s.authMiddleware(s.getRoundTimer))

	mux.Handle("POST /api/events/{id}/countdown", s.authMiddleware(s.startCountdown))
	mux.Handle("POST /api/events/{id}/countdown/extend", s.authMiddleware(s.extendCountdown))
	mux.Handle("DELETE /api/events/{id}/countdown", s.authMiddleware(s.stopCountdown))
	mux.Handle("GET /api/events/{id}/countdown", s.authMiddleware(s.getCountdown))

	mux.HandleFunc("GET /ws/events/{id}", s.serveEventWs)
	mux.HandleFunc("GET /ws/rounds/{id}/timer", s.serveRoundTimerWs)
	mux.HandleFunc("GET /ws/admin/dashboard", s.serveAdminWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *MatchnightApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *MatchnightApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
