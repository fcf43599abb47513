package web

import (
	"encoding/json"
	"net/http"

	"github.com/artpar/guardrail/domain/cost"
)

// RecordCostEventsRequest is the body for appending cost events.
type RecordCostEventsRequest struct {
	Events []cost.Event `json:"events"`
}

// RecordCostEvents appends a batch of cost events to the log.
func (h *Handler) RecordCostEvents(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	var req RecordCostEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	if err := h.costs.Record(r.Context(), account, req.Events); err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]interface{}{
		"status": "recorded",
		"count":  len(req.Events),
	})
}

// Analyze attributes the account's spend over a timeframe to drivers.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	analysis, err := h.analyzer.Analyze(r.Context(), account, r.URL.Query().Get("timeframe"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, analysis)
}

// DailyReport returns a single-day attribution snapshot.
func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "date is required (YYYY-MM-DD)")
		return
	}
	report, err := h.analyzer.DailyReport(r.Context(), account, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// Anomalies returns the anomaly list plus the aggregate score.
func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	result, err := h.scorer.Score(r.Context(), account, r.URL.Query().Get("timeframe"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// CostTrends returns the daily cost series with near-term projections.
func (h *Handler) CostTrends(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "30d"
	}
	trends, err := h.analyzer.Trends(r.Context(), account, period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trends)
}

// Recommendations returns drivers ranked by reclaimable spend.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	recs, err := h.analyzer.Recommendations(r.Context(), account, r.URL.Query().Get("timeframe"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, recs)
}
