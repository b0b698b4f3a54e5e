package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"swap-guard/internal/batch"
	"swap-guard/internal/pipeline"
	"swap-guard/internal/routing"
	"swap-guard/internal/storage"
)

var (
	errTooManyRequests = errors.New("too many requests")
	errInternal        = errors.New("internal error")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response error: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(fmt.Sprintf("{\"error\":%q}", http.StatusText(status)))
	}
	_, _ = w.Write(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrImmutable),
		errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, batch.ErrBatchNotPending):
		return http.StatusConflict
	case errors.Is(err, routing.ErrNoViableRoute),
		errors.Is(err, routing.ErrNoRoutes),
		errors.Is(err, routing.ErrTooManyRoutes),
		errors.Is(err, pipeline.ErrProtectionRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, batch.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSONError(w, status, errInternal)
		return
	}
	writeJSONError(w, status, err)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", storage.ErrInvalidInput, err)
	}
	return nil
}
