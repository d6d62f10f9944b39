package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for the stt package.
var (
	// ErrNoAPIKey indicates missing credentials. Treated as a configuration
	// error: the session cannot start.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("stt: already connected")

	// ErrConnectionClosed indicates the upstream stream ended unexpectedly.
	ErrConnectionClosed = errors.New("stt: connection closed")
)

// ConnectionError reports an upstream refusal during Connect.
type ConnectionError struct {
	// Provider identifies the recognizer.
	Provider string

	// StatusCode is the HTTP status of the failed handshake, or 0 when no
	// response was received.
	StatusCode int

	// Body is the handshake response body, if any.
	Body string

	// Cause is the underlying dial error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("stt [%s]: connect failed (HTTP %d): %s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("stt [%s]: connect failed (HTTP %d): %v", e.Provider, e.StatusCode, e.Cause)
	default:
		return fmt.Sprintf("stt [%s]: connect failed: %v", e.Provider, e.Cause)
	}
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
