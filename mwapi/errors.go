package mwapi

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the server answers without a body.
	ErrEmptyResponse = errors.New("mwapi: empty response from server")

	ErrTokenNotFound = errors.New("mwapi: token not found in response")
)

// UsageError is an error reported by the API itself, either through the
// top-level error envelope or a per-action "Failed" result.
type UsageError struct {
	Code        string
	Message     string
	HTTPStatus  int
	RawResponse string
}

func (e *UsageError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UsageError) IsTokenError() bool {
	return isTokenErrorCode(e.Code)
}

func (e *UsageError) IsAssertUserFailed() bool {
	return isAssertUserFailedCode(e.Code)
}

func IsUsageError(err error) (*UsageError, bool) {
	var e *UsageError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ConfigError reports an invalid ActionAPI setting. It is only returned
// while building, never from a request.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mwapi: invalid %s: %s", e.Field, e.Reason)
}

func isTokenErrorCode(code string) bool {
	switch strings.ToLower(code) {
	case "badtoken", "notoken", "needtoken", "wrongtoken":
		return true
	default:
		return false
	}
}

func isAssertUserFailedCode(code string) bool {
	switch strings.ToLower(code) {
	case "assertuserfailed", "assertnameduserfailed":
		return true
	default:
		return false
	}
}
