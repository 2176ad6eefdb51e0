// Package policy evaluates user-defined CEL rules that add recommendations to SPOF entries.
package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// ErrInvalidRule marks a rule that cannot be compiled.
var ErrInvalidRule = errors.New("invalid policy rule")

// RuleSet is the document stored in policy.rules_file.
type RuleSet struct {
	Rules []DynamicRule `yaml:"rules"`
}

// LoadRules decodes a rule document.
func LoadRules(r io.Reader) ([]DynamicRule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var set RuleSet
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return set.Rules, nil
}

// LoadRulesFile reads rules from disk.
func LoadRulesFile(path string) ([]DynamicRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// RuleAdvisor turns matching rules into recommendations for the SPOF monitor.
type RuleAdvisor struct {
	engine *CELEngine
	model  *resource.Model
	logger *slog.Logger
}

var _ spof.Advisor = (*RuleAdvisor)(nil)

// NewRuleAdvisor compiles rules against the criticality model used for categories.
func NewRuleAdvisor(rules []DynamicRule, model *resource.Model, logger *slog.Logger) (*RuleAdvisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil {
		model = resource.DefaultModel()
	}
	engine, err := NewCELEngine(logger)
	if err != nil {
		return nil, err
	}
	if err := engine.Compile(rules); err != nil {
		return nil, err
	}
	return &RuleAdvisor{engine: engine, model: model, logger: logger}, nil
}

// NewFromConfig loads policy.rules_file. Without a file the advisor is nil.
func NewFromConfig(cfg config.PolicyConfig, model *resource.Model, logger *slog.Logger) (*RuleAdvisor, error) {
	if cfg.RulesFile == "" {
		return nil, nil
	}
	rules, err := LoadRulesFile(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return NewRuleAdvisor(rules, model, logger)
}

// Rules reports how many rules are active.
func (a *RuleAdvisor) Rules() int { return a.engine.Len() }

// Recommend implements spof.Advisor.
func (a *RuleAdvisor) Recommend(e spof.Entry) []string {
	t := resource.NormalizeType(e.ResourceType)
	matches, err := a.engine.Evaluate(context.Background(), EvaluationContext{
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		ResourceType: string(t),
		Category:     string(a.model.Category(t)),
		RiskScore:    e.RiskScore,
		RiskLevel:    string(e.RiskLevel),
		Dependents:   e.DependentsCount,
		BlastRadius:  e.BlastRadius,
		UserImpact:   string(e.UserImpact),
		PathLength:   len(e.CriticalPath),
	})
	if err != nil {
		a.logger.Warn("policy evaluation aborted", "resource_id", e.ResourceID, "error", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		msg := m.Message
		if msg == "" {
			msg = fmt.Sprintf("Policy %s matched", m.ID)
		}
		out = append(out, msg)
	}
	return out
}
