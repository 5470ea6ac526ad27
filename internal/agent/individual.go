package agent

import (
	"errors"
	"strings"

	"rulevo/internal/genotype"
	"rulevo/internal/inference"
	"rulevo/internal/scape"
)

// ErrUnsetPerf is returned when a performance result is read before the
// individual has been assessed.
var ErrUnsetPerf = errors.New("individual performance has not been assessed")

// Individual is a rule-list policy. Its genotype never changes after
// construction; operators build new individuals instead, so the perf result
// and the policy cache can never go stale.
type Individual struct {
	id       string
	rules    []genotype.Rule
	strategy inference.Strategy
	perf     *scape.PerfResult
	elite    bool
	cache    *policyCache
}

// New builds an unassessed individual. The rule slice is copied.
func New(id string, rules []genotype.Rule, strategy inference.Strategy, useCache bool) *Individual {
	ind := &Individual{
		id:       id,
		rules:    append([]genotype.Rule(nil), rules...),
		strategy: strategy,
	}
	if useCache {
		ind.cache = newPolicyCache()
	}
	return ind
}

func (ind *Individual) ID() string {
	return ind.id
}

// Rules returns a copy of the rule list.
func (ind *Individual) Rules() []genotype.Rule {
	return append([]genotype.Rule(nil), ind.rules...)
}

func (ind *Individual) Len() int {
	return len(ind.rules)
}

func (ind *Individual) Strategy() inference.Strategy {
	return ind.strategy
}

func (ind *Individual) UsesCache() bool {
	return ind.cache != nil
}

// SelectAction makes the individual act as a policy.
func (ind *Individual) SelectAction(obs scape.Observation) scape.Action {
	if ind.cache == nil {
		return ind.strategy.Infer(ind.rules, obs)
	}
	key := observationKey(obs)
	if action, ok := ind.cache.get(key); ok {
		return action
	}
	action := ind.strategy.Infer(ind.rules, obs)
	ind.cache.put(key, action)
	return action
}

func (ind *Individual) HasPerf() bool {
	return ind.perf != nil
}

func (ind *Individual) PerfResult() (scape.PerfResult, error) {
	if ind.perf == nil {
		return scape.PerfResult{}, ErrUnsetPerf
	}
	return *ind.perf, nil
}

// Perf is the fitness used for ranking and selection.
func (ind *Individual) Perf() (float64, error) {
	result, err := ind.PerfResult()
	if err != nil {
		return 0, err
	}
	return result.Perf, nil
}

func (ind *Individual) IsElite() bool {
	return ind.elite
}

// WithPerf returns a copy of ind carrying result. The copy shares the
// immutable genotype and the policy cache.
func (ind *Individual) WithPerf(result scape.PerfResult) *Individual {
	out := *ind
	out.perf = &result
	return &out
}

// WithElite returns a copy of ind with the elite flag set to elite.
func (ind *Individual) WithElite(elite bool) *Individual {
	out := *ind
	out.elite = elite
	return &out
}

// Clone copies the individual under a new id with its own rule storage and
// an empty policy cache. The perf result and elite flag carry over.
func (ind *Individual) Clone(id string) *Individual {
	out := New(id, ind.rules, ind.strategy, ind.cache != nil)
	if ind.perf != nil {
		result := *ind.perf
		out.perf = &result
	}
	out.elite = ind.elite
	return out
}

func (ind *Individual) String() string {
	lines := make([]string, len(ind.rules))
	for i, rule := range ind.rules {
		lines[i] = rule.String()
	}
	return strings.Join(lines, "\n")
}
