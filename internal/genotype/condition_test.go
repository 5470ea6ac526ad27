package genotype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/scape"
)

func TestIntervalContainsAndSpan(t *testing.T) {
	integer := NewInterval(2, 5, scape.DimInteger)
	assert.True(t, integer.Contains(2))
	assert.True(t, integer.Contains(5))
	assert.False(t, integer.Contains(1))
	assert.False(t, integer.Contains(6))
	assert.Equal(t, 4.0, integer.Span())
	assert.Equal(t, "[2, 5]", integer.String())

	continuous := NewInterval(0.25, 0.75, scape.DimReal)
	assert.Equal(t, 0.5, continuous.Span())
	assert.Panics(t, func() { NewInterval(1, 0, scape.DimReal) })
}

func TestConditionMatchesIsConjunctionOfContainment(t *testing.T) {
	enc := mustEncoding(t, integerSpace(), defaultParams())
	cond := NewCondition([]float64{3, 6, 1, -1, 5, 5}, enc)

	assert.True(t, cond.Matches(scape.Observation{3, -1, 5}))
	assert.True(t, cond.Matches(scape.Observation{6, 1, 5}))
	assert.True(t, cond.Matches(scape.Observation{4, 0, 5}))

	assert.False(t, cond.Matches(scape.Observation{2, 0, 5}))
	assert.False(t, cond.Matches(scape.Observation{7, 0, 5}))
	assert.False(t, cond.Matches(scape.Observation{4, 2, 5}))
	assert.False(t, cond.Matches(scape.Observation{4, -2, 5}))
}

func TestConditionOwnsItsAlleles(t *testing.T) {
	enc := mustEncoding(t, integerSpace(), defaultParams())
	alleles := []float64{3, 6, 1, -1, 5, 5}
	cond := NewCondition(alleles, enc)
	alleles[0] = 0

	got := cond.Alleles()
	require.Equal(t, 3.0, got[0])
	got[1] = 0
	assert.Equal(t, 6.0, cond.Alleles()[1])
	assert.Equal(t, 6, cond.NumAlleles())
}

func TestRuleDelegatesToCondition(t *testing.T) {
	enc := mustEncoding(t, integerSpace(), defaultParams())
	rule := Rule{Condition: NewCondition([]float64{0, 10, -3, 3, 5, 5}, enc), Action: 2}

	assert.True(t, rule.Matches(scape.Observation{10, 3, 5}))
	assert.Equal(t, 1.0, rule.Generality())
	assert.Equal(t, 7, rule.NumAlleles())
	assert.Equal(t, "[0, 10] && [-3, 3] && [5, 5] -> 2", rule.String())
}
