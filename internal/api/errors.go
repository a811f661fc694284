// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/clinicore/pumpmatch/internal/logging"
	"github.com/clinicore/pumpmatch/internal/metrics"
	"github.com/clinicore/pumpmatch/internal/recommend"
	"github.com/clinicore/pumpmatch/internal/validation"
)

// apiError is the wire shape of one error.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// writeJSON writes v with the given status. Encoding failures are logged and
// abandoned; headers are already gone at that point.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Warn().Err(err).Msg("response encode failed")
	}
}

// writeError maps a pipeline error onto the API error contract.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := apiError{Code: "INTERNAL", Message: "internal error"}

	var reqErr *validation.RequestError
	switch {
	case errors.As(err, &reqErr):
		status = http.StatusBadRequest
		resp = apiError{Code: "VALIDATION_ERROR", Message: reqErr.Error(), Details: reqErr.Fields}
	case errors.Is(err, recommend.ErrNoInput):
		status = http.StatusBadRequest
		resp = apiError{Code: "NO_INPUT", Message: "supply a persona, a description or questionnaire answers"}
	case errors.Is(err, recommend.ErrUnknownPersona):
		status = http.StatusBadRequest
		resp = apiError{Code: "UNKNOWN_PERSONA", Message: err.Error()}
	case errors.Is(err, recommend.ErrAllCandidatesEliminated):
		status = http.StatusUnprocessableEntity
		resp = apiError{Code: "ALL_CANDIDATES_ELIMINATED",
			Message: "every device was eliminated by the stated deal-breakers; relax a constraint and retry"}
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("unhandled recommendation error")
	}

	metrics.RecommendErrors.WithLabelValues(resp.Code).Inc()
	writeJSON(w, r, status, errorResponse{Error: resp})
}
