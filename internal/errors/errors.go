package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoCredentials is the configuration error raised when the credential
	// pool is empty. It is never retried.
	ErrNoCredentials     = errors.New("no completion credentials configured")
	ErrEmptyMessages     = errors.New("messages must not be empty")
	ErrInvalidOptions    = errors.New("invalid completion options")
	ErrRateLimited       = errors.New("upstream rate limited")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrUpstreamExhausted = errors.New("upstream failed on every attempt")
	// ErrRetriesExhausted marks an attempt loop that ended without returning.
	// Reaching it means the loop itself is broken.
	ErrRetriesExhausted = errors.New("completion retries exhausted")
	ErrUnauthorized     = errors.New("missing or invalid bearer token")
)

// UpstreamExhaustedError is returned once the whole attempt budget of a
// completion call has been spent. Cause is the failure of the final attempt.
type UpstreamExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *UpstreamExhaustedError) Error() string {
	return fmt.Sprintf("upstream failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *UpstreamExhaustedError) Unwrap() error { return e.Cause }

func (e *UpstreamExhaustedError) Is(target error) bool { return target == ErrUpstreamExhausted }

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}
