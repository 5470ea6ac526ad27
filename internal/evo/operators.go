package evo

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"rulevo/internal/agent"
	"rulevo/internal/genotype"
	"rulevo/internal/inference"
	"rulevo/internal/scape"
)

// MaxCutDraws bounds the variable-length crossover search for size-valid
// cut intervals.
const MaxCutDraws = 10000

var (
	ErrSizeMismatch       = errors.New("parent genotype layouts differ")
	ErrCutBudgetExhausted = errors.New("no size-valid crossover cut found")
	ErrNoSelectableAction = errors.New("no selectable action")
)

// Operators holds everything the genetic operators need besides the random
// source. NewID names every individual the operators create.
type Operators struct {
	Encoding genotype.Encoding
	Strategy inference.Strategy
	Actions  scape.ActionSpace

	PCross     float64
	PCrossSwap float64
	PMut       float64

	IndivSize      int
	IndivSizeMin   int
	IndivSizeMax   int
	VariableLength bool

	UseCache bool
	NewID    func() string
}

func (o Operators) validate() error {
	if o.Encoding == nil {
		return fmt.Errorf("encoding is required")
	}
	if o.Strategy == nil {
		return fmt.Errorf("inference strategy is required")
	}
	if len(o.Actions) == 0 {
		return ErrNoSelectableAction
	}
	if o.NewID == nil {
		return fmt.Errorf("id generator is required")
	}
	if o.VariableLength {
		if o.IndivSizeMin < 1 || o.IndivSizeMax < o.IndivSizeMin {
			return fmt.Errorf("invalid variable size bounds [%d, %d]", o.IndivSizeMin, o.IndivSizeMax)
		}
	} else if o.IndivSize < 1 {
		return fmt.Errorf("individual size must be >= 1, got %d", o.IndivSize)
	}
	return nil
}

func (o Operators) build(rules []genotype.Rule) *agent.Individual {
	return agent.New(o.NewID(), rules, o.Strategy, o.UseCache)
}

// RandomIndividual draws a fresh unassessed individual.
func (o Operators) RandomIndividual(rng *rand.Rand) *agent.Individual {
	size := o.IndivSize
	if o.VariableLength {
		size = o.IndivSizeMin + rng.IntN(o.IndivSizeMax-o.IndivSizeMin+1)
	}
	rules := make([]genotype.Rule, size)
	for i := range rules {
		rules[i] = genotype.Rule{
			Condition: genotype.NewCondition(o.Encoding.InitConditionAlleles(rng), o.Encoding),
			Action:    o.Actions[rng.IntN(len(o.Actions))],
		}
	}
	return o.build(rules)
}

// Crossover recombines two parents with probability PCross. Otherwise the
// parents come back unchanged, perf results included.
func (o Operators) Crossover(rng *rand.Rand, a, b *agent.Individual) (*agent.Individual, *agent.Individual, error) {
	if rng.Float64() >= o.PCross {
		return a, b, nil
	}
	if o.VariableLength {
		return o.spliceCrossover(rng, a, b)
	}
	return o.uniformCrossover(rng, a, b)
}

// uniformCrossover swaps values position by position over the flattened
// (condition alleles..., action) streams of both parents.
func (o Operators) uniformCrossover(rng *rand.Rand, a, b *agent.Individual) (*agent.Individual, *agent.Individual, error) {
	streamA, widthA, err := flatten(a.Rules())
	if err != nil {
		return nil, nil, err
	}
	streamB, widthB, err := flatten(b.Rules())
	if err != nil {
		return nil, nil, err
	}
	if len(streamA) != len(streamB) || widthA != widthB {
		return nil, nil, fmt.Errorf("%w: %d rules x %d alleles vs %d rules x %d alleles",
			ErrSizeMismatch, a.Len(), widthA, b.Len(), widthB)
	}
	if want := 2*len(o.Encoding.ObservationSpace()) + 1; widthA != want {
		return nil, nil, fmt.Errorf("%w: rule width %d, encoding expects %d", ErrSizeMismatch, widthA, want)
	}

	for i := range streamA {
		if rng.Float64() < o.PCrossSwap {
			streamA[i], streamB[i] = streamB[i], streamA[i]
		}
	}
	return o.build(o.regroup(streamA, widthA)), o.build(o.regroup(streamB, widthB)), nil
}

func flatten(rules []genotype.Rule) ([]float64, int, error) {
	if len(rules) == 0 {
		return nil, 0, fmt.Errorf("%w: empty rule list", ErrSizeMismatch)
	}
	width := rules[0].NumAlleles()
	stream := make([]float64, 0, width*len(rules))
	for i, rule := range rules {
		if rule.NumAlleles() != width {
			return nil, 0, fmt.Errorf("%w: rule %d has %d alleles, rule 0 has %d", ErrSizeMismatch, i, rule.NumAlleles(), width)
		}
		stream = append(stream, rule.Condition.Alleles()...)
		stream = append(stream, float64(rule.Action))
	}
	return stream, width, nil
}

func (o Operators) regroup(stream []float64, width int) []genotype.Rule {
	rules := make([]genotype.Rule, 0, len(stream)/width)
	for start := 0; start < len(stream); start += width {
		chunk := stream[start : start+width]
		rules = append(rules, genotype.Rule{
			Condition: genotype.NewCondition(chunk[:width-1], o.Encoding),
			Action:    scape.Action(chunk[width-1]),
		})
	}
	return rules
}

// spliceCrossover cuts one contiguous run of whole rules out of each parent
// and exchanges them. Cuts are redrawn until both children fit the size
// bounds.
func (o Operators) spliceCrossover(rng *rand.Rand, a, b *agent.Individual) (*agent.Individual, *agent.Individual, error) {
	rulesA, rulesB := a.Rules(), b.Rules()
	if len(rulesA) == 0 || len(rulesB) == 0 {
		return nil, nil, fmt.Errorf("%w: empty parent", ErrSizeMismatch)
	}
	for draw := 0; draw < MaxCutDraws; draw++ {
		startA, endA := drawCut(rng, len(rulesA))
		startB, endB := drawCut(rng, len(rulesB))
		sizeA := len(rulesA) - (endA - startA) + (endB - startB)
		sizeB := len(rulesB) - (endB - startB) + (endA - startA)
		if !o.sizeInBounds(sizeA) || !o.sizeInBounds(sizeB) {
			continue
		}
		childA := splice(rulesA, startA, endA, rulesB[startB:endB])
		childB := splice(rulesB, startB, endB, rulesA[startA:endA])
		return o.build(childA), o.build(childB), nil
	}
	return nil, nil, fmt.Errorf("%w after %d draws (parents %d and %d rules, bounds [%d, %d])",
		ErrCutBudgetExhausted, MaxCutDraws, len(rulesA), len(rulesB), o.IndivSizeMin, o.IndivSizeMax)
}

// drawCut returns a half-open rule range [start, end) with at least one rule.
func drawCut(rng *rand.Rand, n int) (int, int) {
	start := rng.IntN(n)
	end := start + 1 + rng.IntN(n-start)
	return start, end
}

func splice(rules []genotype.Rule, start, end int, insert []genotype.Rule) []genotype.Rule {
	out := make([]genotype.Rule, 0, len(rules)-(end-start)+len(insert))
	out = append(out, rules[:start]...)
	out = append(out, insert...)
	out = append(out, rules[end:]...)
	return out
}

func (o Operators) sizeInBounds(n int) bool {
	return n >= o.IndivSizeMin && n <= o.IndivSizeMax
}

// Mutate perturbs condition alleles through the encoding and, with
// probability PMut per rule, swaps the action for another selectable one.
// When nothing changes the same instance is returned.
func (o Operators) Mutate(rng *rand.Rand, ind *agent.Individual) *agent.Individual {
	rules := ind.Rules()
	changed := false
	for i, rule := range rules {
		alleles := rule.Condition.Alleles()
		mutated := o.Encoding.MutateConditionAlleles(rng, alleles)
		if !slices.Equal(alleles, mutated) {
			rules[i].Condition = genotype.NewCondition(mutated, o.Encoding)
			changed = true
		}
		if rng.Float64() < o.PMut {
			if action, ok := o.otherAction(rng, rule.Action); ok {
				rules[i].Action = action
				changed = true
			}
		}
	}
	if !changed {
		return ind
	}
	return o.build(rules)
}

func (o Operators) otherAction(rng *rand.Rand, current scape.Action) (scape.Action, bool) {
	choices := o.Actions.Without(current)
	if len(choices) == 0 {
		return current, false
	}
	return choices[rng.IntN(len(choices))], true
}
