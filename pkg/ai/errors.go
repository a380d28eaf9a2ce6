package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode classifies provider failures independently of the provider SDK.
type ErrorCode string

const (
	// CodeUnavailable marks overload/unavailable responses that are worth retrying.
	CodeUnavailable ErrorCode = "unavailable"
	// CodeConfiguration marks missing or rejected credentials.
	CodeConfiguration ErrorCode = "configuration"
	// CodeInvalidResponse marks a response without usable content.
	CodeInvalidResponse ErrorCode = "invalid_response"
	// CodeUnknown is used when the provider error could not be classified.
	CodeUnknown ErrorCode = "unknown"
)

// ErrNotConfigured is returned when a client is built without credentials.
var ErrNotConfigured = &Error{Provider: "none", Code: CodeConfiguration, Err: errors.New("llm credentials are not configured")}

// Error is the structured error returned by provider adapters.
type Error struct {
	Provider string
	Code     ErrorCode
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf reports the structured code carried by err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Code
	}
	return CodeUnknown
}

// IsTransient reports whether err is an overload/unavailable failure.
// Structured codes win; unclassified errors fall back to a case-insensitive
// message match on "overloaded" and "unavailable".
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var aiErr *Error
	if errors.As(err, &aiErr) {
		if aiErr.Code == CodeUnavailable || aiErr.Status == http.StatusServiceUnavailable {
			return true
		}
		if aiErr.Code != CodeUnknown {
			return false
		}
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "overloaded") || strings.Contains(message, "unavailable")
}

func codeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeConfiguration
	default:
		return CodeUnknown
	}
}
