package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"quizpack/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeDomainError translates core errors into an HTTP status and a stable error code.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

// classify maps an error to its HTTP status and the code used on both REST and WebSocket.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, domain.ErrFetchAbandoned):
		return http.StatusConflict, "fetch_abandoned"
	case errors.Is(err, domain.ErrFetch):
		return http.StatusBadGateway, "fetch_failed"
	case errors.Is(err, domain.ErrNoQuestions):
		return http.StatusNotFound, "no_questions"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrStaleSession):
		return http.StatusConflict, "stale_session"
	case errors.Is(err, domain.ErrNoSavedSession):
		return http.StatusNotFound, "no_saved_session"
	case errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusBadRequest, "option_not_found"
	case errors.Is(err, domain.ErrPackNotFound):
		return http.StatusNotFound, "pack_not_found"
	case errors.Is(err, domain.ErrPackNotRemovable):
		return http.StatusConflict, "pack_not_removable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}
