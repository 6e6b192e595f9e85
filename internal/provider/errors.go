package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"google.golang.org/genai"
)

// ErrorType classifies a failed model call for the retry policy.
type ErrorType int8

const (
	ErrorTypeRateLimit ErrorType = iota
	ErrorTypeTransient
	ErrorTypeEmptyResponse
	ErrorTypeAuth
	ErrorTypeBadRequest
	ErrorTypeUnknown
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Retryable reports whether a call that failed with this type may be retried
// against the same model.
func (et ErrorType) Retryable() bool {
	switch et {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	}
	return false
}

// Error is a classified backend failure.
type Error struct {
	Type       ErrorType
	StatusCode int
	Model      string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %s (%s, status %d): %v", e.Model, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %s (%s): %v", e.Model, e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps an error returned by a backend to an ErrorType.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if t, ok := classifyStatus(apiErr.Code, apiErr.Status); ok {
			return t
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTransient
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorTypeTransient
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "unavailable"), strings.Contains(msg, "timeout"):
		return ErrorTypeTransient
	}
	return ErrorTypeUnknown
}

func classifyStatus(code int, status string) (ErrorType, bool) {
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return ErrorTypeRateLimit, true
	case code == http.StatusRequestTimeout || code >= 500:
		return ErrorTypeTransient, true
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth, true
	case code == http.StatusBadRequest:
		return ErrorTypeBadRequest, true
	}
	return ErrorTypeUnknown, false
}

// IsRetryable reports whether err may be retried against the same model.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}
