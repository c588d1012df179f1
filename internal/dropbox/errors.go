// Package dropbox provides an HTTP client for the Dropbox API with automatic
// retry, rate limiting, and structured error classification. Every provider
// response is classified exactly once, immediately after the call, into a
// tagged Classification that downstream logic switches on.
package dropbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Classification is the tagged error variant produced by the one-time
// classification step. Callers branch on this instead of re-parsing
// provider error text.
type Classification int

const (
	// ClassUnknown covers errors the classifier could not map.
	ClassUnknown Classification = iota
	// ClassPermanent means the credential or app registration is dead
	// (revoked refresh token, disabled app). Never auto-retried.
	ClassPermanent
	// ClassTransient covers timeouts, connection failures, throttling and
	// server errors. Eligible for caller-driven retry.
	ClassTransient
	// ClassConflict means the resource already exists ("path/conflict").
	ClassConflict
	// ClassNotFound means the resource does not exist ("path/not_found").
	ClassNotFound
)

func (c Classification) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	case ClassConflict:
		return "conflict"
	case ClassNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinel errors for response classification.
// Use errors.Is(err, dropbox.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("dropbox: bad request")
	ErrUnauthorized = errors.New("dropbox: unauthorized")
	ErrForbidden    = errors.New("dropbox: forbidden")
	ErrNotFound     = errors.New("dropbox: not found")
	ErrConflict     = errors.New("dropbox: conflict")
	ErrThrottled    = errors.New("dropbox: throttled")
	ErrServerError  = errors.New("dropbox: server error")
)

// APIError wraps a sentinel error with the HTTP status code, the provider's
// error summary, and the classification tag.
type APIError struct {
	StatusCode int
	Summary    string
	Message    string
	Class      Classification
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("dropbox: HTTP %d (%s): %s", e.StatusCode, e.Summary, e.Message)
	}

	return fmt.Sprintf("dropbox: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify returns the classification tag for any error produced by this
// package. Plain network errors (no APIError in the chain) are transient.
func Classify(err error) Classification {
	if err == nil {
		return ClassUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}

	return ClassTransient
}

// errorBody mirrors the Dropbox API error response JSON.
type errorBody struct {
	ErrorSummary string `json:"error_summary"`
}

// newAPIError builds an APIError from a non-2xx response, performing the
// single classification step for this call.
func newAPIError(statusCode int, body []byte) *APIError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb) // best effort; summary stays empty on failure

	e := &APIError{
		StatusCode: statusCode,
		Summary:    eb.ErrorSummary,
		Message:    strings.TrimSpace(string(body)),
	}

	e.Err, e.Class = classifyResponse(statusCode, eb.ErrorSummary)

	return e
}

// classifyResponse maps an HTTP status code plus the structured error summary
// to a sentinel error and classification tag. The summary is consulted only
// for 409 responses, where Dropbox multiplexes conflict and not-found.
func classifyResponse(code int, summary string) (error, Classification) {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest, ClassUnknown
	case http.StatusUnauthorized:
		return ErrUnauthorized, ClassUnknown
	case http.StatusForbidden:
		return ErrForbidden, ClassPermanent
	case http.StatusConflict:
		if strings.Contains(summary, "not_found") {
			return ErrNotFound, ClassNotFound
		}

		if strings.Contains(summary, "conflict") {
			return ErrConflict, ClassConflict
		}

		return ErrConflict, ClassUnknown
	case http.StatusTooManyRequests:
		return ErrThrottled, ClassTransient
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError, ClassTransient
		}

		return nil, ClassUnknown
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
