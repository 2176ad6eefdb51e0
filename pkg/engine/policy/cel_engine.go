package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
)

// DynamicRule represents a user-defined recommendation rule (e.g. from YAML).
type DynamicRule struct {
	ID        string `json:"id" yaml:"id"`
	Condition string `json:"condition" yaml:"condition"` // CEL expression: "resource.category == 'data-store' && dependents >= 5"
	Message   string `json:"message" yaml:"message"`
}

// EvaluationContext is the set of variables a rule can reference.
type EvaluationContext struct {
	ResourceID   string
	ResourceName string
	ResourceType string
	Category     string
	RiskScore    float64
	RiskLevel    string
	Dependents   int
	BlastRadius  int
	UserImpact   string
	PathLength   int
}

func (c EvaluationContext) vars() map[string]interface{} {
	return map[string]interface{}{
		"resource": map[string]interface{}{
			"id":       c.ResourceID,
			"name":     c.ResourceName,
			"type":     c.ResourceType,
			"category": c.Category,
		},
		"risk_score":           c.RiskScore,
		"risk_level":           c.RiskLevel,
		"dependents":           int64(c.Dependents),
		"blast_radius":         int64(c.BlastRadius),
		"user_impact":          c.UserImpact,
		"critical_path_length": int64(c.PathLength),
	}
}

// CELEngine manages the compilation and execution of dynamic rules.
type CELEngine struct {
	env      *cel.Env
	rules    map[string]DynamicRule
	programs map[string]cel.Program
	logger   *slog.Logger
}

// NewCELEngine initializes the CEL environment with the SPOF variable declarations.
func NewCELEngine(logger *slog.Logger) (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("resource", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("risk_score", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("dependents", cel.IntType),
		cel.Variable("blast_radius", cel.IntType),
		cel.Variable("user_impact", cel.StringType),
		cel.Variable("critical_path_length", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CELEngine{
		env:      env,
		rules:    make(map[string]DynamicRule),
		programs: make(map[string]cel.Program),
		logger:   logger,
	}, nil
}

// Compile compiles a list of rules into executable programs.
// Rules must evaluate to a bool; a later rule with the same id replaces the earlier one.
func (e *CELEngine) Compile(rules []DynamicRule) error {
	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule without id", ErrInvalidRule)
		}
		ast, issues := e.env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("%w: rule %s compilation error: %w", ErrInvalidRule, r.ID, issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return fmt.Errorf("%w: rule %s must return bool, got %s", ErrInvalidRule, r.ID, out)
		}

		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("rule %s program creation error: %w", r.ID, err)
		}

		e.rules[r.ID] = r
		e.programs[r.ID] = prg
	}
	return nil
}

// Len reports the number of compiled rules.
func (e *CELEngine) Len() int { return len(e.programs) }

// Evaluate returns the rules matching the input, ordered by rule id.
// A rule that fails at runtime is logged and skipped.
func (e *CELEngine) Evaluate(ctx context.Context, data EvaluationContext) ([]DynamicRule, error) {
	vars := data.vars()

	ids := make([]string, 0, len(e.programs))
	for id := range e.programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matches []DynamicRule
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		out, _, err := e.programs[id].Eval(vars)
		if err != nil {
			e.logger.Error("Rule evaluation failed", "rule_id", id, "resource_id", data.ResourceID, "error", err)
			continue
		}

		if match, ok := out.Value().(bool); ok && match {
			matches = append(matches, e.rules[id])
		}
	}

	return matches, nil
}
