package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/genotype"
	"rulevo/internal/inference"
	"rulevo/internal/scape"
)

type countingStrategy struct {
	inference.DecisionList
	calls int
}

func (s *countingStrategy) Infer(rules []genotype.Rule, obs scape.Observation) scape.Action {
	s.calls++
	return s.DecisionList.Infer(rules, obs)
}

func testRules(t *testing.T) []genotype.Rule {
	t.Helper()
	enc, err := genotype.NewEncoding(scape.ObservationSpace{
		{Name: "pos", Lower: 0, Upper: 10, Kind: scape.DimInteger},
	}, genotype.EncodingParams{PMut: 0.1})
	require.NoError(t, err)
	return []genotype.Rule{
		{Condition: genotype.NewCondition([]float64{0, 4}, enc), Action: 0},
		{Condition: genotype.NewCondition([]float64{5, 9}, enc), Action: 1},
	}
}

func TestIndividualSelectsActionThroughStrategy(t *testing.T) {
	ind := New("i0", testRules(t), inference.DecisionList{Default: scape.NoAction}, false)

	assert.Equal(t, scape.Action(0), ind.SelectAction(scape.Observation{2}))
	assert.Equal(t, scape.Action(1), ind.SelectAction(scape.Observation{9}))
	assert.Equal(t, scape.NoAction, ind.SelectAction(scape.Observation{10}))
	assert.Equal(t, 2, ind.Len())
	assert.Equal(t, "i0", ind.ID())
}

func TestIndividualPerfUnsetIsDistinctError(t *testing.T) {
	ind := New("i0", testRules(t), inference.DecisionList{Default: scape.NoAction}, false)
	require.False(t, ind.HasPerf())

	_, err := ind.Perf()
	require.ErrorIs(t, err, ErrUnsetPerf)
	_, err = ind.PerfResult()
	require.ErrorIs(t, err, ErrUnsetPerf)

	assessed := ind.WithPerf(scape.PerfResult{Perf: -3.5, TimeStepsUsed: 12})
	perf, err := assessed.Perf()
	require.NoError(t, err)
	assert.Equal(t, -3.5, perf)
	assert.False(t, ind.HasPerf(), "WithPerf must not modify the receiver")
}

func TestIndividualPolicyCacheShortCircuitsInference(t *testing.T) {
	strategy := &countingStrategy{DecisionList: inference.DecisionList{Default: scape.NoAction}}
	ind := New("i0", testRules(t), strategy, true)

	for i := 0; i < 5; i++ {
		assert.Equal(t, scape.Action(0), ind.SelectAction(scape.Observation{3}))
	}
	assert.Equal(t, 1, strategy.calls)
	assert.Equal(t, scape.NoAction, ind.SelectAction(scape.Observation{10}))
	assert.Equal(t, scape.NoAction, ind.SelectAction(scape.Observation{10}))
	assert.Equal(t, 2, strategy.calls)
	assert.Equal(t, 2, ind.cache.len())
}

func TestIndividualWithoutCacheAlwaysInfers(t *testing.T) {
	strategy := &countingStrategy{DecisionList: inference.DecisionList{Default: scape.NoAction}}
	ind := New("i0", testRules(t), strategy, false)
	for i := 0; i < 3; i++ {
		ind.SelectAction(scape.Observation{3})
	}
	assert.Equal(t, 3, strategy.calls)
	assert.False(t, ind.UsesCache())
}

func TestIndividualCloneOwnsRuleStorage(t *testing.T) {
	ind := New("i0", testRules(t), inference.DecisionList{Default: scape.NoAction}, true).
		WithPerf(scape.PerfResult{Perf: 1}).
		WithElite(true)
	ind.SelectAction(scape.Observation{1})

	clone := ind.Clone("i1")
	assert.Equal(t, "i1", clone.ID())
	assert.True(t, clone.IsElite())
	assert.True(t, clone.HasPerf())
	assert.Equal(t, 0, clone.cache.len())

	clone.rules[0] = clone.rules[1]
	assert.Equal(t, scape.Action(0), ind.Rules()[0].Action)
}

func TestRulesReturnsCopy(t *testing.T) {
	ind := New("i0", testRules(t), inference.DecisionList{Default: scape.NoAction}, false)
	rules := ind.Rules()
	rules[0].Action = 7
	assert.Equal(t, scape.Action(0), ind.Rules()[0].Action)
}

func TestObservationKeyDistinguishesValues(t *testing.T) {
	assert.Equal(t, observationKey(scape.Observation{1, 2}), observationKey(scape.Observation{1, 2}))
	assert.NotEqual(t, observationKey(scape.Observation{1, 2}), observationKey(scape.Observation{2, 1}))
	assert.NotEqual(t, observationKey(scape.Observation{1}), observationKey(scape.Observation{1, 0}))
}

func TestComputeSignatureTracksGenotype(t *testing.T) {
	rules := testRules(t)
	a := New("a", rules, inference.DecisionList{Default: scape.NoAction}, false)
	b := New("b", rules, inference.Specificity{Default: scape.NoAction}, true)
	c := New("c", []genotype.Rule{rules[1], rules[0]}, inference.DecisionList{Default: scape.NoAction}, false)

	sigA := ComputeSignature(a)
	assert.Equal(t, sigA.Fingerprint, ComputeSignature(b).Fingerprint)
	assert.NotEqual(t, sigA.Fingerprint, ComputeSignature(c).Fingerprint)
	assert.Equal(t, 2, sigA.Summary.TotalRules)
	assert.InDelta(t, 5.0/11.0, sigA.Summary.MeanGenerality, 1e-12)
	assert.Equal(t, map[scape.Action]int{0: 1, 1: 1}, sigA.Summary.ActionDistribution)
}
