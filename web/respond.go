package web

import (
	"encoding/json"
	"net/http"

	"github.com/artpar/guardrail/pkg/errs"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeData wraps a payload in the standard response envelope.
func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errs.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errs.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// accountID extracts the account from the request. The costs API calls
// it workspaceId; both names are accepted everywhere.
func accountID(r *http.Request) string {
	if id := r.URL.Query().Get("accountId"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("workspaceId"); id != "" {
		return id
	}
	return r.Header.Get("X-Account-ID")
}

// requireAccount writes a validation error when no account was supplied.
func (h *Handler) requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := accountID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "accountId (or workspaceId) is required")
		return "", false
	}
	return id, true
}
