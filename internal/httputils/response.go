// Package httputils holds the response and error helpers shared by the
// pantry HTTP surfaces.
package httputils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// StatusFor maps an error to the HTTP status it should be reported with.
func StatusFor(err error) int {
	if _, ok := types.AsValidationError(err); ok {
		return http.StatusUnprocessableEntity
	}
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidFilter), errors.Is(err, types.ErrInvalidSort),
		errors.Is(err, types.ErrInvalidData), errors.Is(err, types.ErrInvalidID):
		return http.StatusBadRequest
	case auth.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrReadOnly):
		return http.StatusMethodNotAllowed
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON shape of an API error.
type ErrorBody struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HandleAPIResponse writes resp as JSON with status, or err as a JSON error
// body with the status from StatusFor. Server errors are logged and their
// message is not exposed.
func HandleAPIResponse(w http.ResponseWriter, r *http.Request, lggr logging.Logger, resp any, status int, err error) {
	if err != nil {
		WriteError(w, r, lggr, err)
		return
	}
	WriteJSON(w, r, lggr, status, resp)
}

// WriteError writes err as {"error": ErrorBody}.
func WriteError(w http.ResponseWriter, r *http.Request, lggr logging.Logger, err error) {
	status := StatusFor(err)
	body := ErrorBody{Status: status, Message: err.Error()}
	if ve, ok := types.AsValidationError(err); ok {
		body.Message = "validation failed"
		body.Fields = ve.Fields
	}
	if status >= http.StatusInternalServerError {
		lggr.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Message = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="pantry"`)
	}
	WriteJSON(w, r, lggr, status, map[string]ErrorBody{"error": body})
}

// WriteJSON marshals v and writes it with status.
func WriteJSON(w http.ResponseWriter, r *http.Request, lggr logging.Logger, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		lggr.Errorw("encode response", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
