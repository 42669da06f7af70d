package runclient

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// ModeOpenAI targets the hosted Assistants API.
	ModeOpenAI = "openai"
	// ModeMock uses the in-process MockClient.
	ModeMock = "mock"
)

// Options selects and configures a Client.
type Options struct {
	Mode           string
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	MockPolls      int
}

// New creates a Client for the configured mode.
func New(opts Options, logger zerolog.Logger) (Client, error) {
	switch opts.Mode {
	case ModeMock:
		logger.Warn().Int("pending_polls", opts.MockPolls).Msg("using mock run client")
		return NewMockClient(opts.MockPolls), nil
	case ModeOpenAI, "":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required in %s mode", ModeOpenAI)
		}
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown run client mode %q", opts.Mode)
	}
}
