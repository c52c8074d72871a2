package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/log"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success     bool        `json:"success"`
	Data        any         `json:"data,omitempty"`
	Message     string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	Kind        errors.Kind `json:"kind,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

var kindStatus = map[errors.Kind]int{
	errors.KindValidation:   http.StatusBadRequest,
	errors.KindUnauthorized: http.StatusUnauthorized,
	errors.KindForbidden:    http.StatusForbidden,
	errors.KindNotFound:     http.StatusNotFound,
	errors.KindConflict:     http.StatusConflict,
	errors.KindDisabled:     http.StatusBadRequest,
	errors.KindRateLimited:  http.StatusTooManyRequests,
	errors.KindTimeout:      http.StatusGatewayTimeout,
	errors.KindTransport:    http.StatusBadGateway,
}

// StatusFor maps an error onto its HTTP status.
func StatusFor(err error) int {
	if status, ok := kindStatus[errors.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			return errors.New(errors.ErrCodeMalformedInput,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case stderrors.Is(err, io.EOF):
			return errors.New(errors.ErrCodeMalformedInput, "request body is empty")
		default:
			return errors.Wrap(errors.ErrCodeMalformedInput, "request body is not valid JSON", err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, Envelope{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	env := Envelope{
		Kind:      errors.KindOf(err),
		Timestamp: time.Now().UTC(),
	}

	var ae *auth.AuthError
	if te, ok := errors.As(err); ok {
		env.Error = string(te.Code)
		env.Message = te.Message
		env.Suggestions = te.Suggestions
	} else if stderrors.As(err, &ae) {
		env.Error = ae.Code
		env.Message = ae.Message
	} else {
		env.Error = string(errors.ErrCodeInternal)
		env.Message = "internal server error"
	}

	a.metrics.RecordError(env.Error, "api")

	logger := a.logger.WithError(err).With(
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", log.RequestIDFromContext(r.Context()),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed")
	} else {
		logger.Debug("request rejected")
	}

	writeJSON(w, status, env)
}
