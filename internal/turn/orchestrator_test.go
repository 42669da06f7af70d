package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// fakeClient is a scripted run service. Statuses are returned in order and
// the last one repeats.
type fakeClient struct {
	mu sync.Mutex

	threadID  string
	threadErr error
	runID     string
	submitErr error
	statuses  []domain.RunStatus
	pollErr   error
	result    string
	resultOK  bool
	resultErr error

	// onPoll runs after each poll with the 1-based poll number.
	onPoll func(n int)
	// pollGate, when set, blocks PollRun until closed or ctx is done.
	pollGate chan struct{}

	createCalls int
	submitCalls int
	pollCalls   int
	fetchCalls  int
	lastText    string
	lastProfile string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		threadID: "t1",
		runID:    "r1",
		statuses: []domain.RunStatus{domain.RunStatusCompleted},
		result:   "ok",
		resultOK: true,
	}
}

func (f *fakeClient) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.threadErr != nil {
		return "", f.threadErr
	}
	return f.threadID, nil
}

func (f *fakeClient) SubmitMessage(ctx context.Context, threadID, text, profileID string) (domain.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastText = text
	f.lastProfile = profileID
	if f.submitErr != nil {
		return domain.RunHandle{}, f.submitErr
	}
	return domain.RunHandle{RunID: f.runID, Status: domain.RunStatusQueued}, nil
}

func (f *fakeClient) PollRun(ctx context.Context, threadID, runID string) (domain.RunHandle, error) {
	if f.pollGate != nil {
		select {
		case <-f.pollGate:
		case <-ctx.Done():
			return domain.RunHandle{}, &domain.TransportError{Op: "retrieve run", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	f.pollCalls++
	n := f.pollCalls
	status := f.statuses[len(f.statuses)-1]
	if n <= len(f.statuses) {
		status = f.statuses[n-1]
	}
	err := f.pollErr
	hook := f.onPoll
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return domain.RunHandle{}, err
	}
	return domain.RunHandle{RunID: runID, Status: status}, nil
}

func (f *fakeClient) FetchResult(ctx context.Context, threadID, runID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.result, f.resultOK, f.resultErr
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls + f.submitCalls + f.pollCalls + f.fetchCalls
}

func fastPoll(maxAttempts int) domain.PollConfig {
	return domain.PollConfig{
		Interval:    time.Millisecond,
		MaxAttempts: maxAttempts,
		MaxDuration: 5 * time.Second,
	}
}

func emptyState() domain.ConversationState {
	return domain.ConversationState{ConversationID: "c1", Messages: []domain.Message{}}
}

type sinkFunc func(domain.TurnEvent)

func (f sinkFunc) OnTurnEvent(_ context.Context, e domain.TurnEvent) { f(e) }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.TurnEvent
}

func (s *recordingSink) OnTurnEvent(ctx context.Context, e domain.TurnEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func TestSubmitTurnSuccessScenario(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusQueued, domain.RunStatusInProgress, domain.RunStatusCompleted}
	client.result = "Backpropagation is..."
	o := New(client, zerolog.Nop())

	state, outcome := o.SubmitTurn(context.Background(), emptyState(), "Explain backpropagation", "asst_1", fastPoll(10))

	require.Equal(t, domain.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "Backpropagation is...", outcome.AssistantText)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, "t1", state.ExternalThreadID)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, domain.RoleUser, state.Messages[0].Role)
	assert.Equal(t, "Explain backpropagation", state.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, "Backpropagation is...", state.Messages[1].Content)
	assert.NotEqual(t, state.Messages[0].ID, state.Messages[1].ID)
	assert.Equal(t, 3, client.pollCalls)
	assert.Equal(t, "asst_1", client.lastProfile)
}

func TestSubmitTurnExhaustsAttempts(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusInProgress}
	o := New(client, zerolog.Nop())

	state, outcome := o.SubmitTurn(context.Background(), emptyState(), "Explain backpropagation", "asst_1", fastPoll(2))

	require.Equal(t, domain.OutcomeTimedOut, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Positive(t, outcome.Elapsed)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, domain.RoleUser, state.Messages[0].Role)
	assert.Equal(t, 2, client.pollCalls)
	assert.Zero(t, client.fetchCalls)
}

func TestSubmitTurnAttemptBudgetHoldsForAnyK(t *testing.T) {
	for _, k := range []int{1, 3, 7} {
		client := newFakeClient()
		client.statuses = []domain.RunStatus{domain.RunStatusQueued}
		o := New(client, zerolog.Nop())

		state, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(k))

		assert.Equal(t, domain.OutcomeTimedOut, outcome.Kind, "k=%d", k)
		assert.Equal(t, k, outcome.Attempts, "k=%d", k)
		assert.Len(t, state.Messages, 1, "k=%d", k)
	}
}

func TestSubmitTurnExhaustsDuration(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusInProgress}
	o := New(client, zerolog.Nop())

	cfg := domain.PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 10000, MaxDuration: 40 * time.Millisecond}
	start := time.Now()
	state, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", cfg)

	require.Equal(t, domain.OutcomeTimedOut, outcome.Kind)
	assert.Less(t, outcome.Attempts, 10000)
	assert.Positive(t, outcome.Attempts)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, state.Messages, 1)
}

func TestSubmitTurnWithoutAssistant(t *testing.T) {
	client := newFakeClient()
	o := New(client, zerolog.Nop())

	in := emptyState()
	state, outcome := o.SubmitTurn(context.Background(), in, "Explain backpropagation", "", fastPoll(5))

	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
	assert.Equal(t, "no assistant configured", outcome.Reason)
	assert.ErrorIs(t, outcome.Cause, domain.ErrNoAssistant)
	assert.True(t, domain.IsConfigError(outcome.Cause))
	assert.Zero(t, client.calls())
	assert.Equal(t, in, state)
}

func TestSubmitTurnRejectsInvalidInput(t *testing.T) {
	client := newFakeClient()
	o := New(client, zerolog.Nop())

	_, outcome := o.SubmitTurn(context.Background(), emptyState(), "   ", "asst_1", fastPoll(5))
	assert.Equal(t, domain.ReasonEmptyMessage, outcome.Reason)

	_, outcome = o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", domain.PollConfig{})
	assert.Equal(t, domain.ReasonInvalidPoll, outcome.Reason)

	_, outcome = o.SubmitTurn(context.Background(), domain.ConversationState{}, "hi", "asst_1", fastPoll(5))
	assert.Equal(t, domain.ReasonNoConversation, outcome.Reason)

	assert.Zero(t, client.calls())
}

func TestSubmitTurnRunFailsOnFirstPoll(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusFailed}
	o := New(client, zerolog.Nop())

	state, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
	assert.Equal(t, "run failed", outcome.Reason)
	assert.ErrorIs(t, outcome.Cause, domain.ErrRunFailed)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, domain.RoleUser, state.Messages[0].Role)
	assert.Zero(t, client.fetchCalls)
}

func TestSubmitTurnRunExpired(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusInProgress, domain.RunStatusTimedOut}
	o := New(client, zerolog.Nop())

	_, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
	assert.Equal(t, domain.ReasonRunExpired, outcome.Reason)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestSubmitTurnMalformedResult(t *testing.T) {
	client := newFakeClient()
	client.result = ""
	client.resultOK = false
	o := New(client, zerolog.Nop())

	state, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
	assert.Equal(t, "malformed response", outcome.Reason)
	assert.ErrorIs(t, outcome.Cause, domain.ErrMalformed)
	assert.Len(t, state.Messages, 1)
}

func TestSubmitTurnEmptyTextIsMalformed(t *testing.T) {
	client := newFakeClient()
	client.result = ""
	client.resultOK = true
	o := New(client, zerolog.Nop())

	_, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.ReasonMalformed, outcome.Reason)
}

func TestSubmitTurnRemoteErrors(t *testing.T) {
	transport := &domain.TransportError{Op: "x", Err: errors.New("connection reset")}
	tests := []struct {
		name         string
		setup        func(f *fakeClient)
		wantReason   string
		wantMessages int
		wantThread   string
	}{
		{
			name:         "thread creation",
			setup:        func(f *fakeClient) { f.threadErr = transport },
			wantReason:   domain.ReasonThreadFailed,
			wantMessages: 0,
		},
		{
			name:         "submission",
			setup:        func(f *fakeClient) { f.submitErr = transport },
			wantReason:   domain.ReasonSubmitFailed,
			wantMessages: 1,
			wantThread:   "t1",
		},
		{
			name: "unknown assistant",
			setup: func(f *fakeClient) {
				f.submitErr = &domain.ConfigError{Field: "assistant_id", Err: domain.ErrUnknownAssistant}
			},
			wantReason:   domain.ReasonUnknownAssistant,
			wantMessages: 1,
			wantThread:   "t1",
		},
		{
			name:         "poll",
			setup:        func(f *fakeClient) { f.pollErr = transport },
			wantReason:   domain.ReasonPollFailed,
			wantMessages: 1,
			wantThread:   "t1",
		},
		{
			name:         "fetch",
			setup:        func(f *fakeClient) { f.resultErr = transport },
			wantReason:   domain.ReasonFetchFailed,
			wantMessages: 1,
			wantThread:   "t1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			tt.setup(client)
			o := New(client, zerolog.Nop())

			state, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(5))

			assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
			assert.Equal(t, tt.wantReason, outcome.Reason)
			assert.Error(t, outcome.Cause)
			assert.Len(t, state.Messages, tt.wantMessages)
			assert.Equal(t, tt.wantThread, state.ExternalThreadID)
		})
	}
}

func TestSubmitTurnReusesThread(t *testing.T) {
	client := newFakeClient()
	o := New(client, zerolog.Nop())

	state := emptyState()
	const turns = 4
	for i := 0; i < turns; i++ {
		var outcome domain.TurnOutcome
		state, outcome = o.SubmitTurn(context.Background(), state, "question", "asst_1", fastPoll(5))
		require.True(t, outcome.OK())
	}

	assert.Equal(t, 1, client.createCalls)
	assert.Equal(t, turns, client.submitCalls)
	require.Len(t, state.Messages, 2*turns)
	for i, m := range state.Messages {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, m.Role, "message %d", i)
		} else {
			assert.Equal(t, domain.RoleAssistant, m.Role, "message %d", i)
		}
	}
}

func TestSubmitTurnExistingThreadSkipsCreate(t *testing.T) {
	client := newFakeClient()
	o := New(client, zerolog.Nop())

	in := emptyState()
	in.ExternalThreadID = "t0"
	state, outcome := o.SubmitTurn(context.Background(), in, "hi", "asst_1", fastPoll(5))

	require.True(t, outcome.OK())
	assert.Zero(t, client.createCalls)
	assert.Equal(t, "t0", state.ExternalThreadID)
}

func TestSubmitTurnDoesNotMutateInput(t *testing.T) {
	client := newFakeClient()
	o := New(client, zerolog.Nop())

	in := emptyState()
	in.Messages = append(make([]domain.Message, 0, 8), domain.NewMessage(domain.RoleUser, "earlier", time.Now()))
	_, outcome := o.SubmitTurn(context.Background(), in, "hi", "asst_1", fastPoll(5))

	require.True(t, outcome.OK())
	assert.Len(t, in.Messages, 1)
	assert.Empty(t, in.ExternalThreadID)
}

func TestSubmitTurnCancelledBeforeStart(t *testing.T) {
	client := newFakeClient()
	o := New(client, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, outcome := o.SubmitTurn(ctx, emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
	assert.Empty(t, state.ExternalThreadID)
	assert.Empty(t, state.Messages)
	assert.Zero(t, client.calls())
}

func TestSubmitTurnCancelledDuringPollPreservesThread(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusInProgress}
	ctx, cancel := context.WithCancel(context.Background())
	client.onPoll = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	o := New(client, zerolog.Nop())

	in := emptyState()
	in.ExternalThreadID = "t0"
	state, outcome := o.SubmitTurn(ctx, in, "hi", "asst_1", domain.PollConfig{
		Interval:    time.Hour,
		MaxAttempts: 5,
		MaxDuration: time.Hour,
	})

	assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
	assert.ErrorIs(t, outcome.Cause, context.Canceled)
	assert.Equal(t, "t0", state.ExternalThreadID)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, domain.RoleUser, state.Messages[0].Role)
}

func TestSubmitTurnCancelledBeforeFirstPoll(t *testing.T) {
	tests := []struct {
		name       string
		thread     string
		wantThread string
		wantMsgs   int
	}{
		{"new thread is not kept", "", "", 0},
		{"existing thread is untouched", "t0", "t0", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.pollGate = make(chan struct{})
			o := New(client, zerolog.Nop())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			in := emptyState()
			in.ExternalThreadID = tt.thread
			state, outcome := o.SubmitTurn(ctx, in, "hi", "asst_1", domain.PollConfig{
				Interval:    time.Millisecond,
				MaxAttempts: 5,
				MaxDuration: time.Hour,
			})

			assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
			assert.Zero(t, outcome.Attempts)
			assert.Equal(t, 1, client.submitCalls)
			assert.Equal(t, tt.wantThread, state.ExternalThreadID)
			assert.Len(t, state.Messages, tt.wantMsgs)
		})
	}
}

func TestSubmitTurnCancelledDuringSubmitDropsNewThread(t *testing.T) {
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	client.submitErr = &domain.TransportError{Op: "create run", Err: context.Canceled}
	o := New(client, zerolog.Nop(), WithEventSink(sinkFunc(func(e domain.TurnEvent) {
		if e.Type == domain.EventTypeThreadCreated {
			cancel()
		}
	})))

	state, outcome := o.SubmitTurn(ctx, emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
	assert.Empty(t, state.ExternalThreadID)
	assert.Empty(t, state.Messages)
	assert.Equal(t, 1, client.createCalls)
}

func TestSubmitTurnDiscardsLateResult(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusCompleted}
	client.result = "too late"
	ctx, cancel := context.WithCancel(context.Background())
	client.onPoll = func(int) { cancel() }
	o := New(client, zerolog.Nop())

	state, outcome := o.SubmitTurn(ctx, emptyState(), "hi", "asst_1", fastPoll(5))

	assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
	for _, m := range state.Messages {
		assert.NotEqual(t, domain.RoleAssistant, m.Role)
	}
}

func TestSubmitTurnBusy(t *testing.T) {
	client := newFakeClient()
	client.pollGate = make(chan struct{})
	o := New(client, zerolog.Nop())

	done := make(chan domain.TurnOutcome, 1)
	go func() {
		_, outcome := o.SubmitTurn(context.Background(), emptyState(), "first", "asst_1", fastPoll(5))
		done <- outcome
	}()

	require.Eventually(t, func() bool { return o.InFlight("c1") }, time.Second, time.Millisecond)

	in := emptyState()
	state, outcome := o.SubmitTurn(context.Background(), in, "second", "asst_1", fastPoll(5))
	assert.Equal(t, domain.OutcomeBusy, outcome.Kind)
	assert.Equal(t, in, state)

	// Other conversations are unaffected.
	other := emptyState()
	other.ConversationID = "c2"
	other.ExternalThreadID = "t2"
	go func() {
		o.SubmitTurn(context.Background(), other, "elsewhere", "asst_1", fastPoll(5))
	}()

	close(client.pollGate)
	first := <-done
	assert.Equal(t, domain.OutcomeSuccess, first.Kind)
	assert.Eventually(t, func() bool { return !o.InFlight("c1") && !o.InFlight("c2") }, time.Second, time.Millisecond)
}

func TestSubmitTurnEmitsEvents(t *testing.T) {
	client := newFakeClient()
	client.statuses = []domain.RunStatus{domain.RunStatusQueued, domain.RunStatusInProgress, domain.RunStatusCompleted}
	sink := &recordingSink{}
	o := New(client, zerolog.Nop(), WithEventSink(sink))

	ctx := ContextWithTurnID(context.Background(), "turn_abc")
	_, outcome := o.SubmitTurn(ctx, emptyState(), "hi", "asst_1", fastPoll(5))
	require.True(t, outcome.OK())

	assert.Equal(t, []domain.EventType{
		domain.EventTypeTurnStarted,
		domain.EventTypeThreadCreated,
		domain.EventTypeRunSubmitted,
		domain.EventTypeRunStatus,
		domain.EventTypeRunStatus,
		domain.EventTypeRunStatus,
		domain.EventTypeTurnFinished,
	}, sink.types())
	for _, e := range sink.events {
		assert.Equal(t, "turn_abc", e.TurnID)
		assert.Equal(t, "c1", e.ConversationID)
	}
	finished, ok := sink.events[len(sink.events)-1].Payload.(domain.TurnFinishedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeSuccess, finished.Kind)
	assert.NotEmpty(t, finished.MessageID)
}

func TestGuard(t *testing.T) {
	g := NewGuard()

	release, ok := g.TryAcquire("c1")
	require.True(t, ok)
	_, ok = g.TryAcquire("c1")
	assert.False(t, ok)
	_, ok = g.TryAcquire("c2")
	assert.True(t, ok)

	release()
	release()
	assert.False(t, g.Active("c1"))
	_, ok = g.TryAcquire("c1")
	assert.True(t, ok)
}

func TestSubmitTurnUnderSharedLease(t *testing.T) {
	g := NewGuard()
	o := New(newFakeClient(), zerolog.Nop(), WithGuard(g))

	release, ok := g.TryAcquire("c1")
	require.True(t, ok)
	defer release()

	_, outcome := o.SubmitTurn(context.Background(), emptyState(), "hi", "asst_1", fastPoll(5))
	assert.Equal(t, domain.OutcomeBusy, outcome.Kind)

	ctx := ContextWithLease(context.Background(), g, "c1")
	_, outcome = o.SubmitTurn(ctx, emptyState(), "hi", "asst_1", fastPoll(5))
	assert.Equal(t, domain.OutcomeSuccess, outcome.Kind)
	assert.True(t, g.Active("c1"), "the lease holder still owns the conversation")

	// A lease from another guard does not count.
	other := ContextWithLease(context.Background(), NewGuard(), "c1")
	_, outcome = o.SubmitTurn(other, emptyState(), "hi", "asst_1", fastPoll(5))
	assert.Equal(t, domain.OutcomeBusy, outcome.Kind)
}
