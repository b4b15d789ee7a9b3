package autoaction

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELMatcher evaluates a Trigger's ruleFilter as a CEL expression against
// the firing alert's fields, giving tenants a richer condition language
// than LabelFilter's flat equality checks (e.g. `severity == "critical" &&
// labels.env in ["prod", "staging"]`). Grounded on this codebase's
// pkg/prg engine's CEL-over-a-typed-environment pattern, narrowed to the
// single alert/severity/labels schema auto-actions need.
type CELMatcher struct {
	env     *cel.Env
	mu      sync.Mutex
	cache   map[string]cel.Program
}

// NewCELMatcher builds a Matcher whose expressions see the alert as
// severity (string), ruleId (string), and labels (map[string]string).
func NewCELMatcher() (*CELMatcher, error) {
	env, err := cel.NewEnv(
		cel.Variable("severity", cel.StringType),
		cel.Variable("ruleId", cel.StringType),
		cel.Variable("labels", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("autoaction: build CEL env: %w", err)
	}
	return &CELMatcher{env: env, cache: make(map[string]cel.Program)}, nil
}

func (m *CELMatcher) compile(expression string) (cel.Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prog, ok := m.cache[expression]; ok {
		return prog, nil
	}
	ast, issues := m.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("autoaction: compile rule filter: %w", issues.Err())
	}
	prog, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("autoaction: build rule filter program: %w", err)
	}
	m.cache[expression] = prog
	return prog, nil
}

// Match implements Matcher.
func (m *CELMatcher) Match(_ context.Context, expression string, alert Alert) (bool, error) {
	prog, err := m.compile(expression)
	if err != nil {
		return false, err
	}
	labels := make(map[string]string, len(alert.Labels))
	for k, v := range alert.Labels {
		labels[k] = v
	}
	out, _, err := prog.Eval(map[string]any{
		"severity": alert.Severity,
		"ruleId":   alert.RuleID,
		"labels":   labels,
	})
	if err != nil {
		return false, fmt.Errorf("autoaction: evaluate rule filter: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("autoaction: rule filter did not evaluate to bool, got %v", out.(ref.Val).Type())
	}
	return bool(b), nil
}
