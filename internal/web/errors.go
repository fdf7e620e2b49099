package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
)

// ErrBadRequest marks malformed request bodies.
var ErrBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, kb.ErrNoCycle):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrUnknownEnvironment),
		errors.Is(err, model.ErrIntervalOutOfRange),
		errors.Is(err, model.ErrBandCount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
