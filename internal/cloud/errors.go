// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for remote model calls.
var (
	// ErrNotConfigured indicates no API key is available.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates the credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the provider is throttling requests.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account cannot pay for the request.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrOverloaded indicates the provider is temporarily unavailable.
	ErrOverloaded = errors.New("provider overloaded")

	// ErrBadRequest indicates the provider rejected the request payload.
	ErrBadRequest = errors.New("bad request")

	// ErrMalformedStream indicates the event stream could not be parsed.
	ErrMalformedStream = errors.New("malformed stream")

	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// APIError is an error reported by a provider.
type APIError struct {
	Provider string
	Code     string
	Message  string
	Status   int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s] (HTTP %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// Unwrap maps the HTTP status onto a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	return statusSentinel(e.Status)
}

// statusSentinel returns the sentinel error for an HTTP status, or nil.
func statusSentinel(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable, 529:
		return ErrOverloaded
	default:
		return nil
	}
}
