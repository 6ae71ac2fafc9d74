/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/ridesbot/internal/auth"
	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/db"
	"github.com/friendsincode/ridesbot/internal/eventbus"
	"github.com/friendsincode/ridesbot/internal/events"
	"github.com/friendsincode/ridesbot/internal/leadership"
	"github.com/friendsincode/ridesbot/internal/logbuffer"
	"github.com/friendsincode/ridesbot/internal/models"
	"github.com/friendsincode/ridesbot/internal/notify"
	"github.com/friendsincode/ridesbot/internal/poster"
	"github.com/friendsincode/ridesbot/internal/report"
	"github.com/friendsincode/ridesbot/internal/telemetry"
	"github.com/friendsincode/ridesbot/internal/version"
)

// runRetention is how long report runs stay in history.
const runRetention = 90 * 24 * time.Hour

// reportSource serves built reports to the API.
type reportSource interface {
	Get(ctx context.Context, date time.Time) (*report.Report, error)
	ParseDate(raw string) (time.Time, error)
	Today() time.Time
}

// runHistory lists recorded report runs.
type runHistory interface {
	RecentRuns(ctx context.Context, date string, limit int) ([]models.ReportRun, error)
}

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	pipeline    *Pipeline
	reports     reportSource
	history     runHistory
	bus         eventbus.Bus
	events      events.Publisher
	telegram    *notify.Telegram
	logBuffer   *logbuffer.Buffer
	election    *leadership.Election
	refresher   *poster.Refresher
	daily       *poster.Daily
	leaderAware *poster.LeaderAware
	listener    *notify.Listener
	updates     *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("ridesbot-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	s.bus = eventbus.New(s.cfg, nodeID, s.logger)
	s.events = s.bus
	s.DeferClose(s.bus.Close)

	pipeline, err := NewPipeline(context.Background(), s.cfg, s.bus, s.logger)
	if err != nil {
		return err
	}
	s.pipeline = pipeline
	s.reports = pipeline.Reports
	s.history = pipeline.Store
	s.telegram = pipeline.Dispatcher.Telegram
	s.DeferClose(pipeline.Close)

	var gate leadership.Gate = leadership.Always{}
	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.DefaultConfig()
		electionConfig.RedisAddr = s.cfg.RedisAddr
		electionConfig.RedisPassword = s.cfg.RedisPassword
		electionConfig.RedisDB = s.cfg.RedisDB
		electionConfig.InstanceID = nodeID

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.election = election
		s.DeferClose(election.Stop)
		gate = election

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", nodeID).
			Msg("leader election enabled for poster")
	}

	s.refresher = poster.NewRefresher(pipeline.Poster, s.bus, gate, s.logger)

	if s.cfg.DailyPostTime != "" {
		daily, err := poster.NewDaily(pipeline.Poster, s.cfg.DailyPostTime, s.cfg.Location(), poster.DailyTargets(s.cfg), s.logger)
		if err != nil {
			return err
		}
		s.daily = daily
		if s.election != nil {
			s.leaderAware = poster.NewLeaderAware(daily, s.election, s.logger)
		}
	}

	if s.cfg.Discord.GatewayEnabled {
		s.listener = notify.NewListener(s.cfg.Discord, pipeline.Dispatcher.Discord, s.bus, s.logger)
	}

	s.updates = version.NewChecker(s.logger)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.election != nil {
		s.election.Start(ctx)
	}

	if s.refresher != nil {
		s.goBackground(func() { s.refresher.Run(ctx) })
	}

	// The daily post follows leadership when elections are on, otherwise it runs here.
	switch {
	case s.leaderAware != nil:
		s.goBackground(func() { s.leaderAware.Run(ctx) })
	case s.daily != nil:
		s.goBackground(func() {
			if err := s.daily.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("daily post loop exited")
			}
		})
	}

	if s.listener != nil {
		s.goBackground(func() {
			if err := s.listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("discord gateway listener exited")
			}
		})
	}

	if s.pipeline != nil {
		s.goBackground(func() { s.runMaintenance(ctx) })
	}

	if s.updates != nil {
		s.goBackground(func() { s.updates.Start(ctx) })
	}
}

func (s *Server) goBackground(fn func()) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		fn()
	}()
}

// runMaintenance refreshes database metrics and prunes old report runs.
func (s *Server) runMaintenance(ctx context.Context) {
	metrics := time.NewTicker(30 * time.Second)
	defer metrics.Stop()
	prune := time.NewTicker(24 * time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-metrics.C:
			db.UpdateConnectionMetrics(s.pipeline.DB)
		case <-prune.C:
			removed, err := s.pipeline.Store.PruneRuns(ctx, time.Now().Add(-runRetention))
			if err != nil {
				s.logger.Warn().Err(err).Msg("prune report runs failed")
				continue
			}
			if removed > 0 {
				s.logger.Info().Int64("removed", removed).Msg("pruned report runs")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.router.Post("/update/prod", s.handleGroupMeCallback(false))
	s.router.Post("/update/dev", s.handleGroupMeCallback(true))
	s.router.Post("/telegram/webhook", s.handleTelegramWebhook)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware([]byte(s.cfg.JWTSigningKey), auth.RoleOperator))
		r.Get("/day", s.handleDay)
		r.Get("/history", s.handleHistory)
		r.Get("/diagnostics", s.handleDiagnostics)
	})
}
