package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ppiankov/claimdesk/internal/extract"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/model"
)

// Response is the envelope of every control API reply
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error describes a failed request
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, an encoding error cannot be reported
	_ = json.NewEncoder(w).Encode(resp)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Data: data})
}

func accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, Response{Data: data})
}

func fail(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, Response{Error: &Error{Code: code, Message: message, Details: details}})
}

func badRequest(w http.ResponseWriter, message, details string) {
	fail(w, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

// writeError maps domain errors onto status codes. Unexpected errors are
// logged with the request logger and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		fail(w, http.StatusNotFound, "NOT_FOUND", "Not found", err.Error())
	case errors.Is(err, model.ErrInvalidInput):
		badRequest(w, "Invalid input", err.Error())
	case errors.Is(err, model.ErrDispatchInFlight):
		fail(w, http.StatusConflict, "DISPATCH_IN_FLIGHT", "Dispatch already in flight", err.Error())
	case errors.Is(err, model.ErrAlreadyExists):
		fail(w, http.StatusConflict, "ALREADY_EXISTS", "Already exists", err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		fail(w, http.StatusConflict, "INVALID_TRANSITION", "Invalid transition", err.Error())
	case errors.Is(err, model.ErrSessionClosed):
		fail(w, http.StatusServiceUnavailable, "SESSION_CLOSED", "Session closed", err.Error())
	case errors.Is(err, extract.ErrQueueFull):
		fail(w, http.StatusServiceUnavailable, "QUEUE_FULL", "Extraction queue full", err.Error())
	default:
		logging.FromContext(r.Context()).Error().Err(err).Msg("request failed")
		fail(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", "An unexpected error occurred")
	}
}
