package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sendqueue/internal/constants"
	"sendqueue/internal/metrics"
	"sendqueue/internal/middleware"
	"sendqueue/internal/models"
	"sendqueue/internal/service"
	"sendqueue/pkg/circuitbreaker"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// JobStore is the part of the durable job store the admin API exposes.
type JobStore interface {
	ListPending(ctx context.Context) ([]*models.JobRecord, error)
	Get(ctx context.Context, id string) (*models.JobRecord, error)
	Delete(ctx context.Context, id string) error
}

// Sender enqueues delivery work.
type Sender interface {
	EnqueueNormalMessage(ctx context.Context, messageID, conversationID string, revision *int) (*models.JobRecord, error)
	EnqueueReaction(ctx context.Context, messageID, conversationID string, revision *int) (*models.JobRecord, error)
	EnqueueReadSyncs(ctx context.Context, syncs []models.SyncRecord) (*models.JobRecord, error)
	EnqueueViewSyncs(ctx context.Context, syncs []models.SyncRecord) (*models.JobRecord, error)
	EnqueueViewOnceOpenSyncs(ctx context.Context, syncs []models.SyncRecord) (*models.JobRecord, error)
	RetryFailedMessage(ctx context.Context, messageID string) (*models.JobRecord, error)
}

// Pinger checks that storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TransportStatus reports relay connectivity.
type TransportStatus interface {
	IsOnline() bool
	BreakerStats() circuitbreaker.Stats
}

// BacklogReporter returns the latest backlog sample.
type BacklogReporter interface {
	Last() service.Backlog
}

// ServerDeps are the collaborators behind the admin API.
type ServerDeps struct {
	Jobs      JobStore
	Sender    Sender
	Storage   Pinger
	Transport TransportStatus
	Backlog   BacklogReporter
	Registry  *metrics.Registry
}

type Server struct {
	router *mux.Router
	logger *logrus.Logger
	cfg    models.ServerConfig
	deps   ServerDeps
	server *http.Server
}

func NewServer(cfg models.ServerConfig, deps ServerDeps, logger *logrus.Logger) *Server {
	if deps.Registry == nil {
		deps.Registry = metrics.GetRegistry()
	}
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		cfg:    cfg,
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(middleware.Options{
		Logger:            s.logger,
		Registry:          s.deps.Registry,
		TrustProxyHeaders: s.cfg.TrustProxyHeaders,
		RouteName:         routeTemplate,
	}))

	// Health check
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(middleware.AdminAuth(s.cfg.AdminToken, s.logger))

	api.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	api.HandleFunc("/transport", s.handleTransport()).Methods(http.MethodGet)
	api.HandleFunc("/backlog", s.handleBacklog()).Methods(http.MethodGet)

	api.HandleFunc("/jobs", s.handleListJobs()).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleGetJob()).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleDeleteJob()).Methods(http.MethodDelete)

	api.HandleFunc("/messages/{id}/send", s.handleEnqueueMessage()).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/reaction", s.handleEnqueueReaction()).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/retry", s.handleRetryMessage()).Methods(http.MethodPost)
	api.HandleFunc("/syncs/{kind}", s.handleEnqueueSyncs()).Methods(http.MethodPost)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	port := s.cfg.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  secondsOr(s.cfg.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec),
		WriteTimeout: secondsOr(s.cfg.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec),
		IdleTimeout:  secondsOr(s.cfg.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec),
	}

	s.logger.Infof("Starting admin server on port %d", port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func secondsOr(sec, fallback int) time.Duration {
	if sec <= 0 {
		sec = fallback
	}
	return time.Duration(sec) * time.Second
}
