package evo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/agent"
	"rulevo/internal/inference"
	"rulevo/internal/scape"
)

func TestTournamentSelectMatchesDrawnCandidates(t *testing.T) {
	population := []*agent.Individual{
		withPerf("a", 1),
		withPerf("b", 3),
		withPerf("dominant", 10),
		withPerf("c", 3),
		withPerf("d", 2),
	}
	rng := newRNG(11)
	twin := newRNG(11)
	picks := map[string]int{}
	for trial := 0; trial < 300; trial++ {
		got, err := TournamentSelect(rng, population, 3)
		require.NoError(t, err)

		var want *agent.Individual
		wantPerf := 0.0
		for i := 0; i < 3; i++ {
			candidate := population[twin.IntN(len(population))]
			perf, _ := candidate.Perf()
			if want == nil || perf > wantPerf {
				want, wantPerf = candidate, perf
			}
		}
		require.Same(t, want, got, "trial %d", trial)
		picks[got.ID()]++
	}
	assert.Greater(t, picks["dominant"], picks["b"])
}

func TestTournamentSelectDominantAlwaysWinsWhenPresent(t *testing.T) {
	dominant := withPerf("dominant", 5)
	population := []*agent.Individual{withPerf("weak", 1), dominant}
	rng := newRNG(3)
	for i := 0; i < 50; i++ {
		got, err := TournamentSelect(rng, population, 64)
		require.NoError(t, err)
		assert.Same(t, dominant, got)
	}
}

func TestTournamentSelectTieGoesToFirstDrawn(t *testing.T) {
	population := []*agent.Individual{withPerf("a", 1), withPerf("b", 1), withPerf("c", 1)}
	rng := newRNG(5)
	twin := newRNG(5)
	for i := 0; i < 50; i++ {
		got, err := TournamentSelect(rng, population, 2)
		require.NoError(t, err)
		first := population[twin.IntN(len(population))]
		twin.IntN(len(population))
		assert.Same(t, first, got)
	}
}

func TestTournamentSelectRejectsUnassessed(t *testing.T) {
	unassessed := agent.New("u", nil, inference.DecisionList{Default: scape.NoAction}, false)
	_, err := TournamentSelect(newRNG(1), []*agent.Individual{unassessed}, 2)
	require.ErrorIs(t, err, agent.ErrUnsetPerf)
}

func TestTournamentSelectArguments(t *testing.T) {
	population := []*agent.Individual{withPerf("a", 1)}
	_, err := TournamentSelect(nil, population, 2)
	assert.Error(t, err)
	_, err = TournamentSelect(newRNG(1), nil, 2)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
	_, err = TournamentSelect(newRNG(1), population, 1)
	assert.Error(t, err)
}
