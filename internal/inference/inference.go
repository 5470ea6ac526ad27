package inference

import (
	"errors"
	"fmt"
	"strings"

	"rulevo/internal/genotype"
	"rulevo/internal/scape"
)

const (
	DecisionListName = "decision_list"
	SpecificityName  = "specificity"
)

var ErrUnknownStrategy = errors.New("unknown inference strategy")

// Strategy turns an ordered rule list into an action for one observation.
// When no rule matches it returns DefaultAction.
type Strategy interface {
	Name() string
	Infer(rules []genotype.Rule, obs scape.Observation) scape.Action
	// DefaultAction is the action answered on no match, scape.NoAction
	// unless a default was configured.
	DefaultAction() scape.Action
}

// FromName resolves a strategy once at configuration time. A negative
// defaultAction means "no default": unmatched observations yield
// scape.NoAction.
func FromName(name string, defaultAction scape.Action) (Strategy, error) {
	if defaultAction < 0 {
		defaultAction = scape.NoAction
	}
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", DecisionListName, "decision-list":
		return DecisionList{Default: defaultAction}, nil
	case SpecificityName:
		return Specificity{Default: defaultAction}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
}

// SelectableActions is the action space minus the strategy's default
// action: the actions rules are allowed to advocate.
func SelectableActions(actions scape.ActionSpace, strategy Strategy) scape.ActionSpace {
	if strategy.DefaultAction() == scape.NoAction {
		return append(scape.ActionSpace(nil), actions...)
	}
	return actions.Without(strategy.DefaultAction())
}

// DecisionList answers with the first matching rule, so rule order is part
// of the policy.
type DecisionList struct {
	Default scape.Action
}

func (DecisionList) Name() string {
	return DecisionListName
}

func (s DecisionList) DefaultAction() scape.Action {
	return s.Default
}

func (s DecisionList) Infer(rules []genotype.Rule, obs scape.Observation) scape.Action {
	for _, rule := range rules {
		if rule.Matches(obs) {
			return rule.Action
		}
	}
	return s.Default
}

// Specificity answers with the action whose most specific matching rule is
// the most specific overall. Ties go to the action seen first in rule
// order.
type Specificity struct {
	Default scape.Action
}

func (Specificity) Name() string {
	return SpecificityName
}

func (s Specificity) DefaultAction() scape.Action {
	return s.Default
}

func (s Specificity) Infer(rules []genotype.Rule, obs scape.Observation) scape.Action {
	type candidate struct {
		action     scape.Action
		generality float64
	}
	// slice rather than map keeps enumeration order stable
	var candidates []candidate
	for _, rule := range rules {
		if !rule.Matches(obs) {
			continue
		}
		generality := rule.Generality()
		found := false
		for i := range candidates {
			if candidates[i].action == rule.Action {
				if generality < candidates[i].generality {
					candidates[i].generality = generality
				}
				found = true
				break
			}
		}
		if !found {
			candidates = append(candidates, candidate{action: rule.Action, generality: generality})
		}
	}
	if len(candidates) == 0 {
		return s.Default
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.generality < best.generality {
			best = c
		}
	}
	return best.action
}
