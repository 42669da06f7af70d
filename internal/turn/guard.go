package turn

import (
	"context"
	"sync"
)

// Guard admits at most one in-flight turn per conversation.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire claims the conversation. It never blocks; ok is false when a
// turn already holds it. release must be called exactly once.
func (g *Guard) TryAcquire(conversationID string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[conversationID]; busy {
		return nil, false
	}
	g.active[conversationID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, conversationID)
			g.mu.Unlock()
		})
	}, true
}

// Active reports whether a turn currently holds the conversation.
func (g *Guard) Active(conversationID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[conversationID]
	return ok
}

type leaseKey struct{}

type lease struct {
	guard          *Guard
	conversationID string
}

// ContextWithLease records that the caller already holds conversationID on g.
// An orchestrator sharing g then runs the turn under that claim instead of
// acquiring it again.
func ContextWithLease(ctx context.Context, g *Guard, conversationID string) context.Context {
	return context.WithValue(ctx, leaseKey{}, lease{guard: g, conversationID: conversationID})
}

// holds reports whether ctx carries a live claim on conversationID from g.
func (g *Guard) holds(ctx context.Context, conversationID string) bool {
	l, ok := ctx.Value(leaseKey{}).(lease)
	return ok && l.guard == g && l.conversationID == conversationID && g.Active(conversationID)
}
