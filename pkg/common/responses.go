package common

import (
	"encoding/json"
	"net/http"

	"bibliotek/pkg/errors"
)

// ErrorEnvelope is the uniform error response shape.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondJSON sends a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError maps an error to the `{error, message}` envelope with the
// status carried by its AppError, defaulting to 500 for unknown errors.
func RespondError(w http.ResponseWriter, err error) {
	code := errors.CodeInternalError
	message := "internal server error"

	if appErr := errors.GetAppError(err); appErr != nil {
		code = appErr.Code
		message = appErr.Message
	}

	RespondJSON(w, errors.StatusOf(err), ErrorEnvelope{
		Error:   code,
		Message: message,
	})
}

// RespondErrorCode sends the envelope with an explicit status and code.
func RespondErrorCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorEnvelope{
		Error:   code,
		Message: message,
	})
}

// ParseJSONBody parses a JSON request body with a size limit.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	return decoder.Decode(v)
}

// ExtractRequestID extracts the request ID from headers, if present.
func ExtractRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return r.Header.Get("X-Correlation-ID")
}
