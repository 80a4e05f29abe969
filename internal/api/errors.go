package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/history"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/kb"
)

var (
	// ErrBadRequest marks malformed request bodies and parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrUnavailable marks endpoints whose backing component is not wired.
	ErrUnavailable = errors.New("not available")
)

const maxBodyBytes = 8 << 20

// StatusFor maps twin errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, core.ErrConfig),
		errors.Is(err, core.ErrDataQuality):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUninitialized),
		errors.Is(err, twin.ErrMissionActive):
		return http.StatusConflict
	case errors.Is(err, kb.ErrDroneNotFound),
		errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	log := logging.LoggerFromContext(r.Context(), s.log)
	if code >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", logging.Err(err), logging.Int("status", code))
	} else {
		log.Debug(r.Context(), "request rejected", logging.Err(err), logging.Int("status", code))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
