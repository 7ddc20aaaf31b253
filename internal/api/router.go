package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/appointment"
	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/cache"
	"github.com/abhishinde10/healthnexus/internal/catalog"
	"github.com/abhishinde10/healthnexus/internal/db"
	"github.com/abhishinde10/healthnexus/internal/metrics"
	"github.com/abhishinde10/healthnexus/internal/ratelimit"
)

type AppointmentService interface {
	Book(ctx context.Context, actor auth.Caller, req appointment.BookingRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, actor auth.Caller, id uuid.UUID, opts appointment.GetOptions) (*appointment.Detail, error)
	List(ctx context.Context, actor auth.Caller, f appointment.ListFilter) ([]appointment.Detail, error)
	Transition(ctx context.Context, actor auth.Caller, id uuid.UUID, to appointment.Status, reason string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor auth.Caller, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, actor auth.Caller, id uuid.UUID, newTime time.Time, reason string) (*appointment.Appointment, error)
	UpdateCost(ctx context.Context, actor auth.Caller, id uuid.UUID, upd appointment.CostUpdate) (*appointment.Appointment, error)
	UpdateConsultation(ctx context.Context, actor auth.Caller, id uuid.UUID, upd appointment.ConsultationUpdate) (*appointment.Appointment, error)
	AddNote(ctx context.Context, actor auth.Caller, id uuid.UUID, content string, private bool) (*appointment.Appointment, error)
}

type CatalogService interface {
	Create(ctx context.Context, actor auth.Caller, req catalog.CreateRequest) (*catalog.Listing, error)
	Get(ctx context.Context, id uuid.UUID) (*catalog.Listing, error)
	List(ctx context.Context, f catalog.ListFilter) ([]catalog.Listing, error)
	Update(ctx context.Context, actor auth.Caller, id uuid.UUID, req catalog.UpdateRequest) (*catalog.Listing, error)
}

// DBAdmin is the maintenance surface of *db.Optimizer.
type DBAdmin interface {
	Health(ctx context.Context) db.HealthReport
	CollectionStats(ctx context.Context) ([]db.TableStats, error)
	EnsureIndexes(ctx context.Context) (db.IndexReport, error)
	Compact(ctx context.Context, table string) error
	Cleanup(ctx context.Context, table string, olderThanDays int) (int64, error)
}

type RouterConfig struct {
	Appointments  AppointmentService
	Catalog       CatalogService
	DBAdmin       DBAdmin // optional, admin database routes are skipped when nil
	Cache         *CacheLayer
	Limiter       ratelimit.Limiter
	DB            Pinger
	CacheStore    cache.Store
	JWTSecret     string
	Env           string
	Version       string
	HealthTimeout time.Duration
	Log           zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoveryMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.DB, cfg.CacheStore, cfg.HealthTimeout, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	c := cfg.Cache

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))
		r.Use(RateLimitMiddleware(cfg.Limiter, cfg.Log))

		// Service catalog endpoints
		r.Route("/services", func(r chi.Router) {
			r.With(c.ReadThrough("services", serviceIdentifier)).Get("/", listServicesHandler(cfg.Catalog))
			r.With(c.InvalidateAfter("services:*")).Post("/", createServiceHandler(cfg.Catalog))
			r.With(c.ReadThrough("services", serviceIdentifier)).Get("/{id}", getServiceHandler(cfg.Catalog))
			r.With(c.InvalidateAfter("services:*")).Patch("/{id}", updateServiceHandler(cfg.Catalog))
		})

		// Appointment endpoints
		r.Route("/appointments", func(r chi.Router) {
			r.With(c.ReadThrough("appointments", appointmentsIdentifier)).Get("/", listAppointmentsHandler(cfg.Appointments))
			r.With(c.InvalidateAfter()).Post("/", createAppointmentHandler(cfg.Appointments))

			r.Route("/{id}", func(r chi.Router) {
				r.With(c.ReadThrough("appointment", idIdentifier)).Get("/", getAppointmentHandler(cfg.Appointments))

				r.Group(func(r chi.Router) {
					r.Use(c.InvalidateAfter())
					r.Post("/transition", transitionAppointmentHandler(cfg.Appointments))
					r.Post("/confirm", transitionToHandler(cfg.Appointments, appointment.StatusConfirmed))
					r.Post("/start", transitionToHandler(cfg.Appointments, appointment.StatusInProgress))
					r.Post("/complete", transitionToHandler(cfg.Appointments, appointment.StatusCompleted))
					r.Post("/no-show", transitionToHandler(cfg.Appointments, appointment.StatusNoShow))
					r.Post("/cancel", cancelAppointmentHandler(cfg.Appointments))
					r.Post("/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
					r.Patch("/cost", updateCostHandler(cfg.Appointments))
					r.Patch("/consultation", updateConsultationHandler(cfg.Appointments))
					r.Post("/notes", addNoteHandler(cfg.Appointments))
				})
			})
		})

		// Admin endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Delete("/cache", purgeCacheHandler(c))

			if cfg.DBAdmin == nil {
				return
			}
			r.Get("/db/health", dbHealthHandler(cfg.DBAdmin))
			r.Get("/db/stats", dbStatsHandler(cfg.DBAdmin))
			r.Post("/db/indexes", ensureIndexesHandler(cfg.DBAdmin))
			r.Post("/db/compact", compactHandler(cfg.DBAdmin))
			r.With(c.InvalidateAfter()).Post("/db/cleanup", cleanupHandler(cfg.DBAdmin))
		})
	})

	return r
}

func idIdentifier(r *http.Request) string {
	return chi.URLParam(r, "id")
}
