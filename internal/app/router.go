package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/accounting/balances"
	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/observability"
	"github.com/odyssey-erp/reconciler/internal/platform/httpx"
	"github.com/odyssey-erp/reconciler/internal/reconciliation"
	"github.com/odyssey-erp/reconciler/internal/training"
	"github.com/odyssey-erp/reconciler/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	AccountsHandler       *accounts.Handler
	JournalsHandler       *journals.Handler
	BalancesHandler       *balances.Handler
	ReconciliationHandler *reconciliation.Handler
	TrainingHandler       *training.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
	Checks                map[string]Pinger
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", params.JournalsHandler.MountRoutes)
		}
		if params.BalancesHandler != nil {
			r.Route("/ledger", params.BalancesHandler.MountRoutes)
		}
		if params.ReconciliationHandler != nil {
			r.Route("/bank-transactions", params.ReconciliationHandler.MountRoutes)
		}
		if params.TrainingHandler != nil {
			params.TrainingHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", r.URL.Path)
	})
	return r
}

func healthz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				status[name] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
