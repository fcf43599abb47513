// Package web provides the JSON HTTP API for the guardrail engine.
package web

import (
	"net/http"

	"github.com/artpar/guardrail/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handler provides the API endpoints.
type Handler struct {
	meter     *app.Meter
	plans     *app.PlanResolver
	evaluator *app.Evaluator
	predictor *app.Predictor
	analyzer  *app.Analyzer
	scorer    *app.Scorer
	alerts    *app.AlertManager
	costs     *app.CostRecorder
	logger    zerolog.Logger
}

// Deps contains dependencies for the API handler.
type Deps struct {
	Meter     *app.Meter
	Plans     *app.PlanResolver
	Evaluator *app.Evaluator
	Predictor *app.Predictor
	Analyzer  *app.Analyzer
	Scorer    *app.Scorer
	Alerts    *app.AlertManager
	Costs     *app.CostRecorder
	Logger    zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		meter:     deps.Meter,
		plans:     deps.Plans,
		evaluator: deps.Evaluator,
		predictor: deps.Predictor,
		analyzer:  deps.Analyzer,
		scorer:    deps.Scorer,
		alerts:    deps.Alerts,
		costs:     deps.Costs,
		logger:    deps.Logger,
	}
}

// Router returns the API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/guardrails", func(r chi.Router) {
		r.Get("/usage", h.UsageStats)
		r.Get("/usage/trend", h.UsageTrend)
		r.Get("/usage/trend/range", h.UsageTrendRange)
		r.Get("/usage/alerts", h.ActiveAlerts)
		r.Post("/usage/events", h.RecordUsage)
		r.Post("/check", h.Check)
		r.Get("/plans/{plan}", h.PlanLimits)
		r.Put("/subscription", h.UpdateSubscription)
	})

	r.Put("/alerts/{id}/read", h.MarkAlertRead)

	r.Route("/unexplained-costs", func(r chi.Router) {
		r.Post("/events", h.RecordCostEvents)
		r.Get("/analyze", h.Analyze)
		r.Get("/daily-report", h.DailyReport)
		r.Get("/anomalies", h.Anomalies)
		r.Get("/trends", h.CostTrends)
		r.Get("/recommendations", h.Recommendations)
	})

	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
