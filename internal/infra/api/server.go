package api

import (
	"context"
	"net/http"
	"time"

	"course-entitlements/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter is satisfied by the redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SyncLimit caps user-triggered syncs per user reference.
type SyncLimit struct {
	Limit  int
	Window time.Duration
}

// Deps carries everything the admin API needs. Limiter may be nil.
type Deps struct {
	Reconcile    usecase.ReconcileUseCase
	ManualGrant  usecase.ManualGrantUseCase
	Entitlements usecase.EntitlementUseCase
	Sales        usecase.SalesUseCase
	Auth         *AuthManager
	Limiter      RateLimiter
	SyncLimit    SyncLimit

	// RequestTimeout bounds every /api/v1 request, including a full reconciliation run.
	RequestTimeout time.Duration

	// Dev disables PII redaction in request logs.
	Dev    bool
	Logger *zerolog.Logger
}

type Server struct {
	reconcile    usecase.ReconcileUseCase
	grants       usecase.ManualGrantUseCase
	entitlements usecase.EntitlementUseCase
	sales        usecase.SalesUseCase
	auth         *AuthManager
	limiter      RateLimiter
	syncLimit    SyncLimit
	timeout      time.Duration
	dev          bool
	now          func() time.Time
	log          *zerolog.Logger
}

func NewServer(d Deps) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 5 * time.Minute
	}
	if d.SyncLimit.Limit <= 0 {
		d.SyncLimit.Limit = 3
	}
	if d.SyncLimit.Window <= 0 {
		d.SyncLimit.Window = 10 * time.Minute
	}
	compLog := d.Logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		reconcile:    d.Reconcile,
		grants:       d.ManualGrant,
		entitlements: d.Entitlements,
		sales:        d.Sales,
		auth:         d.Auth,
		limiter:      d.Limiter,
		syncLimit:    d.SyncLimit,
		timeout:      d.RequestTimeout,
		dev:          d.Dev,
		now:          time.Now,
		log:          &compLog,
	}
}

// WithClock replaces the clock used for manual-grant states and default report windows.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Handler builds the router: /health and /metrics are open, /api/v1 requires auth.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware, Timeout(s.timeout))

		r.Post("/reconcile", s.handleReconcile)
		r.Post("/legacy/heal", s.handleHealLegacy)
		r.Post("/users/{ref}/sync", s.handleSyncUser)
		r.Get("/users/{id}/entitlements", s.handleEntitlements)
		r.Get("/users/{id}/courses/{courseID}/access", s.handleHasAccess)

		r.Post("/manual-grants", s.handleGrant)
		r.Post("/manual-grants/sweep", s.handleSweep)

		r.Get("/sales", s.handleSalesList)
		r.Get("/sales/summary", s.handleSalesSummary)
	})
	return r
}
