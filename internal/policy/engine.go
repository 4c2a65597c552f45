// Package policy evaluates chat admission rules written in Rego.
package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query  rego.PreparedEvalQuery
	limits Limits
}

// Limits are passed to the policy as input.limits.
type Limits struct {
	MaxMessageLength   int
	MaxSessionMessages int
}

// Request describes one chat request to admit.
type Request struct {
	MessageLength       int
	SessionMessageCount int
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Decision string
	Reasons  []string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string, limits Limits) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query, limits: limits}, nil
}

// Evaluate checks the chat admission policy.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Decision, error) {
	input := map[string]interface{}{
		"message_length":        req.MessageLength,
		"session_message_count": req.SessionMessageCount,
		"limits": map[string]interface{}{
			"max_message_length":   e.limits.MaxMessageLength,
			"max_session_messages": e.limits.MaxSessionMessages,
		},
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// The policy defines a default decision; an empty result means the
	// package was not loaded.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	d := Decision{Decision: DecisionAllow}
	if s, ok := doc["decision"].(string); ok {
		d.Decision = s
	}
	if reasons, ok := doc["reasons"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
		sort.Strings(d.Reasons)
	}
	return d, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package chat_policy

default decision = "allow"

reasons[r] {
	input.message_length > input.limits.max_message_length
	r := "message_too_long"
}

reasons[r] {
	input.limits.max_session_messages > 0
	input.session_message_count >= input.limits.max_session_messages
	r := "session_too_long"
}

decision = "block" {
	count(reasons) > 0
}
`
