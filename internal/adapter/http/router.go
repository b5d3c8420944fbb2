package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/saccogov/internal/adapter/http/handler"
	"github.com/iho/saccogov/internal/adapter/http/middleware"
	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
	"github.com/iho/saccogov/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	LoanHandler       *handler.LoanHandler
	GuarantorHandler  *handler.GuarantorHandler
	VotingHandler     *handler.VotingHandler
	AllocationHandler *handler.AllocationHandler
	JournalHandler    *handler.JournalHandler
	HealthHandler     *handler.HealthHandler
	AuthHandler       *handler.AuthHandler

	// Auth resolves the principal for /api/v1. Required.
	Auth func(http.Handler) http.Handler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
}

// journalReaders may inspect the general ledger.
var journalReaders = []domain.Role{
	domain.RoleAdmin,
	domain.RoleTreasurer,
	domain.RoleSecretary,
	domain.RoleChairperson,
	domain.RoleLoanOfficer,
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth)

		// Keys are scoped per principal, so this runs after auth.
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL)
			r.Use(idempotencyMiddleware.Wrap)
		}

		r.Get("/me", cfg.AuthHandler.Me)

		// Loans
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", cfg.LoanHandler.Create)
			r.Get("/", cfg.LoanHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.LoanHandler.Get)
				r.Get("/audit", cfg.LoanHandler.Audit)
				r.Post("/fee", cfg.LoanHandler.PayFee)
				r.Post("/submit", cfg.LoanHandler.Submit)
				r.Post("/review", cfg.LoanHandler.StartReview)
				r.Post("/approve", cfg.LoanHandler.Approve)
				r.Post("/reject", cfg.LoanHandler.Reject)
				r.Post("/table", cfg.LoanHandler.Table)
				r.Post("/voting/open", cfg.LoanHandler.OpenVoting)
				r.Post("/voting/close", cfg.LoanHandler.CloseVoting)
				r.Get("/voting", cfg.VotingHandler.Session)
				r.Post("/votes", cfg.VotingHandler.Cast)
				r.Post("/final-approve", cfg.LoanHandler.FinalApprove)
				r.Post("/disburse", cfg.LoanHandler.Disburse)

				// Guarantors
				r.Post("/guarantors", cfg.GuarantorHandler.Add)
				r.Get("/guarantors", cfg.GuarantorHandler.List)
				r.Post("/guarantors/{pledgeID}/respond", cfg.GuarantorHandler.Respond)
			})
		})

		// Deposit allocations
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/", cfg.AllocationHandler.Create)
			r.Get("/{reference}", cfg.AllocationHandler.Get)
		})
		r.Get("/members/{memberID}/allocations", cfg.AllocationHandler.ListByMember)

		// General ledger
		r.Route("/journal", func(r chi.Router) {
			r.Use(middleware.RequireRole(journalReaders...))
			r.Get("/", cfg.JournalHandler.List)
			r.Get("/mappings", cfg.JournalHandler.Mappings)
			r.Get("/consistency", cfg.JournalHandler.Consistency)
		})
	})

	return r
}
