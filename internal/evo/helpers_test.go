package evo

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"rulevo/internal/agent"
	"rulevo/internal/config"
	"rulevo/internal/genotype"
	"rulevo/internal/inference"
	"rulevo/internal/scape"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func lineSpace() scape.ObservationSpace {
	return scape.ObservationSpace{{Name: "x", Lower: 0, Upper: 10, Kind: scape.DimInteger}}
}

// stubEnv scores a policy by how many of the points 0..10 it maps to
// action 1.
type stubEnv struct {
	calls atomic.Int64
	err   error
}

func (e *stubEnv) Name() string                            { return "stub" }
func (e *stubEnv) ObservationSpace() scape.ObservationSpace { return lineSpace() }
func (e *stubEnv) ActionSpace() scape.ActionSpace           { return scape.ActionSpace{0, 1} }

func (e *stubEnv) Assess(ctx context.Context, policy scape.Policy, _ int, _ float64) (scape.PerfResult, error) {
	e.calls.Add(1)
	if e.err != nil {
		return scape.PerfResult{}, e.err
	}
	if err := ctx.Err(); err != nil {
		return scape.PerfResult{}, err
	}
	hits := 0
	for x := 0; x <= 10; x++ {
		if policy.SelectAction(scape.Observation{float64(x)}) == 1 {
			hits++
		}
	}
	return scape.PerfResult{Perf: float64(hits), TimeStepsUsed: 11}, nil
}

func testParams() config.Hyperparams {
	h := config.Default()
	h.PopSize = 6
	h.NumElites = 2
	h.IndivSize = 3
	h.NumRollouts = 2
	h.Generations = 3
	h.Seed = 7
	h.Executor = config.ExecutorSerial
	return h
}

func testOperators(t *testing.T, pMut float64) Operators {
	t.Helper()
	enc, err := genotype.NewEncoding(lineSpace(), genotype.EncodingParams{PMut: pMut, RNought: 0.1, MutSigmaPcnt: 0.1})
	require.NoError(t, err)
	next := 0
	return Operators{
		Encoding:   enc,
		Strategy:   inference.DecisionList{Default: scape.NoAction},
		Actions:    scape.ActionSpace{0, 1},
		PCross:     1,
		PCrossSwap: 0.5,
		PMut:       pMut,
		IndivSize:  4,
		NewID: func() string {
			next++
			return "t-" + strconv.Itoa(next)
		},
	}
}

func withPerf(id string, perf float64) *agent.Individual {
	return agent.New(id, nil, inference.DecisionList{Default: scape.NoAction}, false).
		WithPerf(scape.PerfResult{Perf: perf})
}

func allAlleles(ind *agent.Individual) []float64 {
	var out []float64
	for _, rule := range ind.Rules() {
		out = append(out, rule.Condition.Alleles()...)
		out = append(out, float64(rule.Action))
	}
	return out
}
