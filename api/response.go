// Package api holds the HTTP response envelope and error-to-status mapping
// shared by every handler, kept separate from internal/merr so the engine
// stays transport-agnostic.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/selcukyavuz/moneybee/internal/merr"
)

// Envelope is the response shape every endpoint returns.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message *string     `json:"message"`
	Errors  []string    `json:"errors"`
}

func WriteJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func WriteData(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteError maps err's merr.Kind to an HTTP status and writes the
// envelope's error shape. Unrecognized errors are treated as Internal.
func WriteError(w http.ResponseWriter, err error) {
	msg := err.Error()
	WriteJSON(w, statusFor(merr.KindOf(err)), Envelope{
		Success: false,
		Message: &msg,
		Errors:  []string{msg},
	})
}

func statusFor(k merr.Kind) int {
	switch k {
	case merr.InvalidArgument:
		return http.StatusBadRequest
	case merr.NotFound:
		return http.StatusNotFound
	case merr.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case merr.PermissionDenied:
		// Reached only for engine-level permission failures (receiver
		// identity mismatch at completion); invalid-API-key rejections
		// are written as 401 directly by the admission middleware before
		// a request ever reaches the engine.
		return http.StatusForbidden
	case merr.Aborted:
		return http.StatusConflict
	case merr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
