package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoAssistant      = errors.New("no assistant configured")
	ErrUnknownAssistant = errors.New("unknown assistant")
	ErrEmptyMessage     = errors.New("empty message")
	ErrRunFailed        = errors.New("run failed")
	ErrMalformed        = errors.New("malformed response")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrBusy             = errors.New("turn already in progress")
	ErrClosed           = errors.New("service is shutting down")
)

// ConfigError is invalid input detected before, or rejected by, the remote
// service. It is never retried.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError is a failed remote call or a reply that could not be used.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
