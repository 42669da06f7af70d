package runclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// OpenAIClient talks to the OpenAI Assistants API (threads, messages, runs).
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient creates a client for the given API key. An empty baseURL
// keeps the library default.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

// CreateThread creates an empty thread.
func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", &domain.TransportError{Op: "create thread", Err: err}
	}
	if thread.ID == "" {
		return "", &domain.TransportError{Op: "create thread", Err: fmt.Errorf("%w: empty thread id", domain.ErrMalformed)}
	}
	return thread.ID, nil
}

// SubmitMessage adds the user message to the thread and creates a run.
func (c *OpenAIClient) SubmitMessage(ctx context.Context, threadID, text, profileID string) (domain.RunHandle, error) {
	if _, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	}); err != nil {
		return domain.RunHandle{}, &domain.TransportError{Op: "create message", Err: err}
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: profileID})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && rejectsAssistant(apiErr) {
			return domain.RunHandle{}, &domain.ConfigError{
				Field: "assistant_id",
				Err:   fmt.Errorf("%w: %s", domain.ErrUnknownAssistant, apiErr.Message),
			}
		}
		return domain.RunHandle{}, &domain.TransportError{Op: "create run", Err: err}
	}
	if run.ID == "" {
		return domain.RunHandle{}, &domain.TransportError{Op: "create run", Err: fmt.Errorf("%w: empty run id", domain.ErrMalformed)}
	}
	return toRunHandle(run), nil
}

// rejectsAssistant reports whether a create-run error is about the assistant
// id. The thread was just written to, so a missing resource is the assistant;
// a bad request counts only when it names the assistant.
func rejectsAssistant(e *openai.APIError) bool {
	switch e.HTTPStatusCode {
	case http.StatusNotFound:
		return true
	case http.StatusBadRequest:
		if e.Param != nil && *e.Param == "assistant_id" {
			return true
		}
		return strings.Contains(strings.ToLower(e.Message), "assistant")
	}
	return false
}

// PollRun retrieves the run.
func (c *OpenAIClient) PollRun(ctx context.Context, threadID, runID string) (domain.RunHandle, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return domain.RunHandle{}, &domain.TransportError{Op: "retrieve run", Err: err}
	}
	return toRunHandle(run), nil
}

// FetchResult reads the newest message the run added to the thread.
func (c *OpenAIClient) FetchResult(ctx context.Context, threadID, runID string) (string, bool, error) {
	limit := 1
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", false, &domain.TransportError{Op: "list messages", Err: err}
	}
	if len(list.Messages) == 0 {
		return "", false, nil
	}
	msg := list.Messages[0]
	if msg.Role != openai.ChatMessageRoleAssistant || len(msg.Content) == 0 {
		return "", false, nil
	}
	content := msg.Content[0]
	if content.Type != "text" || content.Text == nil || content.Text.Value == "" {
		return "", false, nil
	}
	return content.Text.Value, true, nil
}

func toRunHandle(run openai.Run) domain.RunHandle {
	h := domain.RunHandle{RunID: run.ID, Status: mapRunStatus(string(run.Status))}
	switch h.Status {
	case domain.RunStatusFailed, domain.RunStatusTimedOut:
		h.LastError = string(run.Status)
		if run.LastError != nil {
			h.LastError = fmt.Sprintf("%s: %v: %s", run.Status, run.LastError.Code, run.LastError.Message)
		}
	}
	return h
}

// mapRunStatus folds the service's run states into the ones the orchestrator
// interprets. requires_action is treated as failure since tool calls are not
// handled.
func mapRunStatus(status string) domain.RunStatus {
	switch status {
	case "queued":
		return domain.RunStatusQueued
	case "in_progress", "cancelling":
		return domain.RunStatusInProgress
	case "completed":
		return domain.RunStatusCompleted
	case "expired":
		return domain.RunStatusTimedOut
	default:
		return domain.RunStatusFailed
	}
}
