package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/domain/trend"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/go-chi/chi/v5"
)

// MetricUsage is one metric's position in the usage stats response.
type MetricUsage struct {
	Current    float64          `json:"current"`
	Limit      int64            `json:"limit"`
	Percentage float64          `json:"percentage"`
	State      guardrail.State  `json:"state"`
	Predicted  trend.Prediction `json:"predicted"`
}

// UsageStats is the aggregate usage response.
type UsageStats struct {
	AccountID       string                 `json:"account_id"`
	PlanID          string                 `json:"plan_id"`
	PeriodKey       string                 `json:"period"`
	Metrics         map[string]MetricUsage `json:"metrics"`
	Recommendations []string               `json:"recommendations,omitempty"`
}

// UsageStats returns current usage, limits, percentages, and predictions.
func (h *Handler) UsageStats(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	p, err := h.plans.ResolveAccount(r.Context(), account)
	if err != nil {
		h.respondError(w, err)
		return
	}
	snapshot, err := h.meter.Snapshot(r.Context(), account)
	if err != nil {
		h.respondError(w, err)
		return
	}

	t := h.evaluator.Thresholds()
	stats := UsageStats{
		AccountID: account,
		PlanID:    p.ID,
		PeriodKey: snapshot.PeriodKey,
		Metrics:   make(map[string]MetricUsage, len(usage.AllMetrics)),
	}

	for _, metric := range usage.AllMetrics {
		limit := p.Limits.LimitFor(metric)
		current := snapshot.Current(metric)

		var pct float64
		if !plan.IsUnlimited(limit) && limit > 0 {
			pct = current / float64(limit) * 100
		}

		prediction, err := h.predictor.Predict(r.Context(), account, metric)
		if err != nil {
			h.respondError(w, err)
			return
		}

		stats.Metrics[string(metric)] = MetricUsage{
			Current:    current,
			Limit:      limit,
			Percentage: pct,
			State:      guardrail.StateFor(pct, t),
			Predicted:  prediction,
		}

		if pct >= t.WarnPercent {
			stats.Recommendations = append(stats.Recommendations, guardrail.Suggestions(metric, pct)...)
		}
	}

	writeData(w, http.StatusOK, stats)
}

// UsageTrend returns the last N days of a metric's daily series.
func (h *Handler) UsageTrend(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "days must be a positive integer")
			return
		}
		days = n
	}

	metric := usage.Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = usage.MetricTokens
	}
	if !usage.IsValidMetric(metric) {
		writeError(w, http.StatusBadRequest, "validation_error", "unknown metric "+string(metric))
		return
	}

	series, err := h.predictor.DailyTrend(r.Context(), account, metric, days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, series)
}

// UsageTrendRange returns a metric's daily series for an explicit range.
func (h *Handler) UsageTrendRange(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	from, err := time.Parse("2006-01-02", r.URL.Query().Get("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "startDate must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "endDate must be YYYY-MM-DD")
		return
	}

	metric := usage.Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = usage.MetricTokens
	}
	if !usage.IsValidMetric(metric) {
		writeError(w, http.StatusBadRequest, "validation_error", "unknown metric "+string(metric))
		return
	}

	series, err := h.predictor.TrendRange(r.Context(), account, metric, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, series)
}

// ActiveAlerts returns the account's unread alerts, newest first.
func (h *Handler) ActiveAlerts(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	alerts, err := h.alerts.Active(r.Context(), account)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, alerts)
}

// RecordUsageRequest is the body for recording a usage event.
type RecordUsageRequest struct {
	Metric  string  `json:"metric"`
	Amount  float64 `json:"amount"`
	EventID string  `json:"event_id,omitempty"`
}

// RecordUsage increments a usage counter, idempotent by event_id.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	var req RecordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	if err := h.meter.Record(r.Context(), account, usage.Metric(req.Metric), req.Amount, req.EventID); err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// CheckRequest is the body for an admission check.
type CheckRequest struct {
	RequestType string  `json:"requestType"`
	Amount      float64 `json:"amount"`
	ModelID     string  `json:"modelId,omitempty"`
}

// Check evaluates a proposed usage delta against the account's limits.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	decision, err := h.evaluator.Check(r.Context(), account, usage.Metric(req.RequestType), req.Amount, req.ModelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, decision)
}

// PlanLimits returns a plan's limits by id.
func (h *Handler) PlanLimits(w http.ResponseWriter, r *http.Request) {
	p, err := h.plans.Resolve(r.Context(), chi.URLParam(r, "plan"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// SubscriptionRequest is the body for a subscription change.
type SubscriptionRequest struct {
	Plan  string `json:"plan"`
	Seats int    `json:"seats"`
}

// UpdateSubscription changes the account's plan, invalidating the limit
// cache so the next check sees the new limits.
func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Plan == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "plan is required")
		return
	}

	if err := h.plans.UpdateSubscription(r.Context(), account, req.Plan, req.Seats); err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"plan": req.Plan, "status": "updated"})
}

// MarkAlertRead transitions an alert from active to read. Durable: the
// alert will not reappear in the active list.
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	if err := h.alerts.MarkAsRead(r.Context(), account, chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "read"})
}
