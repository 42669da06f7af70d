package domain

import (
	"errors"
	"time"
)

// RunHandle is one submitted job on the external run service. A handle is
// never reused across turns.
type RunHandle struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
	// LastError is the raw status or error code reported by the service when
	// the run did not complete.
	LastError string `json:"last_error,omitempty"`
}

// PollConfig bounds the poll loop of a single turn. Both ceilings are
// enforced; whichever is reached first ends the loop.
type PollConfig struct {
	Interval    time.Duration `json:"interval"`
	MaxAttempts int           `json:"max_attempts"`
	MaxDuration time.Duration `json:"max_duration"`
}

// DefaultPollConfig is one check per second for up to a minute.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    time.Second,
		MaxAttempts: 60,
		MaxDuration: 90 * time.Second,
	}
}

// Validate checks that every bound is positive.
func (c PollConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return &ConfigError{Field: "interval", Err: errors.New("must be positive")}
	case c.MaxAttempts <= 0:
		return &ConfigError{Field: "max_attempts", Err: errors.New("must be positive")}
	case c.MaxDuration <= 0:
		return &ConfigError{Field: "max_duration", Err: errors.New("must be positive")}
	}
	return nil
}
