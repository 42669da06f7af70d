package runclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// MockClient is an in-process run service for local development. Every run
// reports in_progress for a fixed number of polls and then completes with a
// reply derived from the submitted text.
type MockClient struct {
	pendingPolls int

	mu      sync.Mutex
	threads map[string]*mockThread
}

type mockThread struct {
	runs map[string]*mockRun
}

type mockRun struct {
	text   string
	polls  int
	status domain.RunStatus
}

// NewMockClient creates a mock whose runs complete after pendingPolls polls.
func NewMockClient(pendingPolls int) *MockClient {
	if pendingPolls < 0 {
		pendingPolls = 0
	}
	return &MockClient{
		pendingPolls: pendingPolls,
		threads:      make(map[string]*mockThread),
	}
}

func (m *MockClient) CreateThread(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &domain.TransportError{Op: "create thread", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "thread_mock_" + uuid.New().String()[:8]
	m.threads[id] = &mockThread{runs: make(map[string]*mockRun)}
	return id, nil
}

func (m *MockClient) SubmitMessage(ctx context.Context, threadID, text, profileID string) (domain.RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.RunHandle{}, &domain.TransportError{Op: "create run", Err: err}
	}
	if profileID == "" {
		return domain.RunHandle{}, &domain.ConfigError{Field: "assistant_id", Err: domain.ErrUnknownAssistant}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, ok := m.threads[threadID]
	if !ok {
		return domain.RunHandle{}, &domain.TransportError{Op: "create message", Err: fmt.Errorf("thread %s not found", threadID)}
	}
	id := "run_mock_" + uuid.New().String()[:8]
	thread.runs[id] = &mockRun{text: text, status: domain.RunStatusQueued}
	return domain.RunHandle{RunID: id, Status: domain.RunStatusQueued}, nil
}

func (m *MockClient) PollRun(ctx context.Context, threadID, runID string) (domain.RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.RunHandle{}, &domain.TransportError{Op: "retrieve run", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.lookup(threadID, runID)
	if err != nil {
		return domain.RunHandle{}, &domain.TransportError{Op: "retrieve run", Err: err}
	}
	if !run.status.Terminal() {
		run.polls++
		if run.polls > m.pendingPolls {
			run.status = domain.RunStatusCompleted
		} else {
			run.status = domain.RunStatusInProgress
		}
	}
	return domain.RunHandle{RunID: runID, Status: run.status}, nil
}

func (m *MockClient) FetchResult(ctx context.Context, threadID, runID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, &domain.TransportError{Op: "list messages", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.lookup(threadID, runID)
	if err != nil {
		return "", false, &domain.TransportError{Op: "list messages", Err: err}
	}
	if run.status != domain.RunStatusCompleted {
		return "", false, nil
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(run.text, 100)), true, nil
}

func (m *MockClient) lookup(threadID, runID string) (*mockRun, error) {
	thread, ok := m.threads[threadID]
	if !ok {
		return nil, errors.New("thread not found")
	}
	run, ok := thread.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
