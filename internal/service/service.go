// Package service composes the turn orchestrator with persistence, access
// policy and progress fan-out for the HTTP layer.
package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/JollyOmnivore/Athena-AI/internal/adapter/runclient"
	"github.com/JollyOmnivore/Athena-AI/internal/domain"
	"github.com/JollyOmnivore/Athena-AI/internal/policy"
	"github.com/JollyOmnivore/Athena-AI/internal/repository"
	"github.com/JollyOmnivore/Athena-AI/internal/turn"
)

// Publisher pushes JSON messages to the subscribers of a conversation.
type Publisher interface {
	Publish(conversationID string, v any) error
}

// Options carries the per-deployment settings the service hands to turns.
type Options struct {
	Assistants []domain.AssistantProfile
	Poll       domain.PollConfig
}

type Service struct {
	store        repository.Store
	orchestrator *turn.Orchestrator
	policyEngine *policy.Engine
	publisher    Publisher
	assistants   []domain.AssistantProfile
	poll         domain.PollConfig
	logger       zerolog.Logger

	// guard is shared with the orchestrator and decides Busy. running only
	// holds the cancel func of each claimed conversation.
	guard   *turn.Guard
	mu      sync.Mutex
	running map[string]*activeTurn

	// Background turns run under baseCtx so that Shutdown can stop them.
	baseCtx context.Context
	stop    context.CancelFunc
	bg      conc.WaitGroup
}

type activeTurn struct {
	id     string
	cancel context.CancelFunc
}

// New creates a Service. publisher may be nil.
func New(store repository.Store, client runclient.Client, policyEngine *policy.Engine, publisher Publisher, opts Options, logger zerolog.Logger) *Service {
	baseCtx, stop := context.WithCancel(context.Background())
	s := &Service{
		store:        store,
		policyEngine: policyEngine,
		publisher:    publisher,
		assistants:   opts.Assistants,
		poll:         opts.Poll,
		logger:       logger.With().Str("component", "service").Logger(),
		guard:        turn.NewGuard(),
		running:      make(map[string]*activeTurn),
		baseCtx:      baseCtx,
		stop:         stop,
	}
	s.orchestrator = turn.New(client, logger, turn.WithEventSink(s), turn.WithGuard(s.guard))
	return s
}

// Shutdown cancels background turns and waits for them to finish or for ctx
// to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	s.mu.Lock()
	for _, t := range s.running {
		t.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
