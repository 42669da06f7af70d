// Package runclient provides clients for the external assistant run service.
package runclient

import (
	"context"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// Client is the contract the turn orchestrator depends on. PollRun and
// FetchResult must be safe to call repeatedly with the same arguments.
type Client interface {
	// CreateThread creates a remote conversation thread and returns its handle.
	CreateThread(ctx context.Context) (string, error)

	// SubmitMessage appends text to the thread and starts a run against the
	// given assistant profile.
	SubmitMessage(ctx context.Context, threadID, text, profileID string) (domain.RunHandle, error)

	// PollRun returns the current status of a run.
	PollRun(ctx context.Context, threadID, runID string) (domain.RunHandle, error)

	// FetchResult returns the reply produced by a completed run. ok is false
	// when the run left no plain-text reply.
	FetchResult(ctx context.Context, threadID, runID string) (text string, ok bool, err error)
}

// Ensure implementations satisfy Client.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MockClient)(nil)
)
