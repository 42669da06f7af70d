// Package policy decides which assistant profiles an identity may use.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.assistant_policy.decision"),
		rego.Module("assistant_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision for an identity selecting a profile.
func (e *Engine) Evaluate(ctx context.Context, identity domain.Identity, profile domain.AssistantProfile) (string, error) {
	input := map[string]any{
		"identity": map[string]any{
			"email":    identity.Email,
			"verified": identity.Verified,
			"faculty":  identity.Faculty,
		},
		"profile": map[string]any{
			"id":         profile.ID,
			"name":       profile.Name,
			"restricted": profile.Restricted,
		},
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined decision falls back to the profile's own restriction.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		if profile.Restricted {
			return DecisionDeny, nil
		}
		return DecisionAllow, nil
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("policy decision is %T, want string", results[0].Expressions[0].Value)
	}
	return s, nil
}

// Allowed reports whether the identity may run turns against profile.
func (e *Engine) Allowed(ctx context.Context, identity domain.Identity, profile domain.AssistantProfile) (bool, error) {
	decision, err := e.Evaluate(ctx, identity, profile)
	if err != nil {
		return false, err
	}
	return decision == DecisionAllow, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package assistant_policy

default decision = "allow"

# Faculty-only assistants.
decision = "deny" {
	input.profile.restricted
	not input.identity.faculty
}
`
