// Package drive provides an HTTP client for the Google Drive v3 REST API
// with automatic retry, error classification, and the resumable upload
// primitives (session start, raw chunk PUT, status probe) the upload relay
// forwards to.
package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrConflict     = errors.New("drive: conflict")
	ErrThrottled    = errors.New("drive: throttled")
	ErrServerError  = errors.New("drive: server error")
)

// Errors that do not come from an HTTP status.
var (
	// ErrTokenUnavailable wraps any failure to obtain a bearer token.
	ErrTokenUnavailable = errors.New("drive: access token unavailable")

	// ErrUnreachable wraps network errors that persisted through all retries.
	ErrUnreachable = errors.New("drive: backend unreachable")

	// ErrNoSessionURL is returned when a resumable session request succeeds
	// but the response carries no Location header.
	ErrNoSessionURL = errors.New("drive: resumable session URL missing from response")
)

// APIError wraps a sentinel error with the HTTP status code, the Drive error
// reason, and the API error message for debugging.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("drive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON envelope Drive uses for API errors.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// newAPIError builds an APIError from a status code and raw response body.
// Bodies that are not Drive error JSON are kept verbatim as the message.
func newAPIError(code int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: code,
		Message:    string(body),
		Err:        classifyStatus(code),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		apiErr.Message = eb.Error.Message

		if len(eb.Error.Errors) > 0 {
			apiErr.Reason = eb.Error.Errors[0].Reason
		}
	}

	// Drive reports quota exhaustion as 403 with a rate-limit reason.
	if code == http.StatusForbidden && isRateLimitReason(apiErr.Reason) {
		apiErr.Err = ErrThrottled
	}

	return apiErr
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

func isRateLimitReason(reason string) bool {
	return reason == "rateLimitExceeded" || reason == "userRateLimitExceeded"
}

// isRetryable reports whether the given API error should be retried.
func isRetryable(apiErr *APIError) bool {
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		return isRateLimitReason(apiErr.Reason)
	default:
		return false
	}
}
