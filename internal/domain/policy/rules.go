package policy

import (
	"errors"
	"fmt"
	"os"

	"github.com/Knetic/govaluate"
	"gopkg.in/yaml.v3"

	"hrflow/internal/domain/auth"
)

var ErrRuleResult = errors.New("rule expression must evaluate to a boolean")

// RuleSpec is the declarative form of a chain rule as read from YAML.
type RuleSpec struct {
	Name            string      `yaml:"name" json:"name"`
	When            string      `yaml:"when" json:"when"`
	Append          []auth.Role `yaml:"append" json:"append,omitempty"`
	SupervisorFinal bool        `yaml:"supervisor_final" json:"supervisorFinal,omitempty"`
}

type Rule struct {
	RuleSpec
	expr *govaluate.EvaluableExpression
}

type ruleFile struct {
	Approval struct {
		Rules []RuleSpec `yaml:"rules"`
	} `yaml:"approval"`
}

// DefaultRuleSpecs appends an admin step for long leave and for categories
// the business head signs off on.
func DefaultRuleSpecs() []RuleSpec {
	return []RuleSpec{
		{
			Name:   "admin_for_extended_leave",
			When:   "category == 'sabbatical' || category == 'unpaid' || totalDays > 15",
			Append: []auth.Role{auth.RoleAdmin},
		},
	}
}

// LoadRules reads the approval.rules block of a YAML file. An empty path or
// a file without rules yields the defaults.
func LoadRules(path string) ([]RuleSpec, error) {
	if path == "" {
		return DefaultRuleSpecs(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(file.Approval.Rules) == 0 {
		return DefaultRuleSpecs(), nil
	}
	return file.Approval.Rules, nil
}

func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("rule_%d", i+1)
		}
		if spec.When == "" {
			return nil, fmt.Errorf("rule %s: empty expression", spec.Name)
		}
		expr, err := govaluate.NewEvaluableExpression(spec.When)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", spec.Name, err)
		}
		for _, role := range spec.Append {
			if !chainRole(role) {
				return nil, fmt.Errorf("rule %s: role %q cannot hold an approval step", spec.Name, role)
			}
		}
		if !spec.SupervisorFinal && len(spec.Append) == 0 {
			return nil, fmt.Errorf("rule %s: no effect", spec.Name)
		}
		rules = append(rules, Rule{RuleSpec: spec, expr: expr})
	}
	return rules, nil
}

func (r Rule) Matches(params map[string]interface{}) (bool, error) {
	result, err := r.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: %w", r.Name, ErrRuleResult)
	}
	return matched, nil
}

// chainRole reports whether role has a pending state of its own.
func chainRole(role auth.Role) bool {
	parsed, ok := auth.ParseRole(string(role))
	if !ok {
		return false
	}
	switch parsed {
	case auth.RoleSupervisor, auth.RoleHR, auth.RoleAdmin:
		return true
	default:
		return false
	}
}
