// Package httpapi exposes the device-facing JSON API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/metrics"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/service"
)

// Observer correlates one-sided observation reports.
type Observer interface {
	Observe(ctx context.Context, o model.Observation) model.ObservationResult
}

// Verifier maps a bearer token to the authenticated user.
type Verifier interface {
	Verify(tok string) (uuid.UUID, error)
}

// Pinger reports storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services behind the API.
type Services struct {
	Registry      service.RegistryService
	Observer      Observer
	Ledger        service.LedgerService
	Graph         service.GraphService
	Devices       service.DeviceService
	Announcements service.AnnouncementService
}

// Server is the passby HTTP API server.
type Server struct {
	svc      Services
	verifier Verifier
	db       Pinger
	log      *zap.Logger
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a Server. db may be nil, in which case health reports no storage.
func New(svc Services, verifier Verifier, db Pinger, version string, log *zap.Logger) *Server {
	s := &Server{
		svc:      svc,
		verifier: verifier,
		db:       db,
		log:      log,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/announcements", s.handleAnnouncements)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/tokens", s.handleRegisterToken)

			r.Post("/encounters/observe", s.handleObserve)
			r.Post("/encounters", s.handleReportDirect)
			r.Get("/encounters", s.handleListRecent)

			r.Get("/users/friends", s.handleListFriends)
			r.Get("/users/blocked", s.handleListBlocked)
			r.Post("/users/{userID}/like", s.handleLike)
			r.Delete("/users/{userID}/like", s.handleUnlike)
			r.Post("/users/{userID}/block", s.handleBlock)
			r.Delete("/users/{userID}/block", s.handleUnblock)

			r.Put("/devices", s.handleRegisterDevice)
			r.Get("/devices", s.handleListDevices)
			r.Delete("/devices", s.handleRemoveDevice)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := false
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("health: db ping", zap.Error(err))
		} else {
			dbOK = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}
