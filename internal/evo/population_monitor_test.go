package evo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/agent"
	"rulevo/internal/scape"
)

func TestInitAndOneGenerationOnCorridor(t *testing.T) {
	params := testParams()
	params.Env = "corridor"
	params.PopSize = 4
	params.NumElites = 2

	m, err := NewPopulationMonitor(MonitorConfig{Env: scape.CorridorScape{}, Params: params})
	require.NoError(t, err)

	initDiag, err := m.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, initDiag.Generation)
	assert.Equal(t, 4, initDiag.Assessments)

	diag, err := m.RunGen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, diag.Generation)

	population := m.Population()
	require.Len(t, population, 4)
	elites := 0
	for _, ind := range population {
		assert.True(t, ind.HasPerf(), "individual %s has no perf", ind.ID())
		if ind.IsElite() {
			elites++
		}
	}
	assert.Equal(t, 2, elites)
	assert.Equal(t, diag.Assessments+diag.SkippedAssessments, 2)
}

func TestRunGenBeforeInit(t *testing.T) {
	m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: testParams()})
	require.NoError(t, err)
	_, err = m.RunGen(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitTwice(t *testing.T) {
	m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: testParams()})
	require.NoError(t, err)
	_, err = m.Init(context.Background())
	require.NoError(t, err)
	_, err = m.Init(context.Background())
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestElitesKeepBestPerf(t *testing.T) {
	m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: testParams()})
	require.NoError(t, err)
	result, err := m.Run(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, result.BestByGeneration, 9)
	for i := 1; i < len(result.BestByGeneration); i++ {
		assert.GreaterOrEqual(t, result.BestByGeneration[i], result.BestByGeneration[i-1])
	}
	best, err := result.Best.Perf()
	require.NoError(t, err)
	assert.Equal(t, result.BestByGeneration[len(result.BestByGeneration)-1], best)
	assert.Len(t, result.FinalPopulation, 6)
}

func TestRunIsReproducibleAcrossExecutors(t *testing.T) {
	run := func(executor string) []float64 {
		params := testParams()
		params.Executor = executor
		params.Workers = 3
		m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: params})
		require.NoError(t, err)
		result, err := m.Run(context.Background(), 5)
		require.NoError(t, err)
		var means []float64
		for _, diag := range result.Diagnostics {
			means = append(means, diag.MeanPerf)
		}
		return means
	}
	assert.Equal(t, run("serial"), run("parallel"))
}

func TestUnchangedOffspringSkipAssessment(t *testing.T) {
	params := testParams()
	params.PCross = 0
	params.PMut = 0
	env := &stubEnv{}
	m, err := NewPopulationMonitor(MonitorConfig{Env: env, Params: params})
	require.NoError(t, err)
	_, err = m.Init(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, params.PopSize, env.calls.Load())

	diag, err := m.RunGen(context.Background())
	require.NoError(t, err)
	assert.Zero(t, diag.Assessments)
	assert.Equal(t, params.PopSize-params.NumElites, diag.SkippedAssessments)
	assert.EqualValues(t, params.PopSize, env.calls.Load())
}

func TestUnchangedOffspringGetDistinctIDs(t *testing.T) {
	params := testParams()
	params.PopSize = 12
	params.PCross = 0
	params.PMut = 0
	env := &stubEnv{}
	m, err := NewPopulationMonitor(MonitorConfig{Env: env, Params: params})
	require.NoError(t, err)
	_, err = m.Init(context.Background())
	require.NoError(t, err)

	for gen := 0; gen < 3; gen++ {
		_, err = m.RunGen(context.Background())
		require.NoError(t, err)

		ids := make(map[string]int)
		ptrs := make(map[*agent.Individual]struct{})
		for _, ind := range m.Population() {
			ids[ind.ID()]++
			ptrs[ind] = struct{}{}
		}
		for id, n := range ids {
			assert.Equal(t, 1, n, "generation %d: id %s repeated", gen+1, id)
		}
		assert.Len(t, ptrs, params.PopSize)
	}
	// clones keep their perf, so nothing is reassessed
	assert.EqualValues(t, params.PopSize, env.calls.Load())

	top := m.Ranked()
	seen := make(map[string]struct{}, len(top))
	for _, ind := range top {
		_, dup := seen[ind.ID()]
		assert.False(t, dup, "ranked population repeats %s", ind.ID())
		seen[ind.ID()] = struct{}{}
	}
}

func TestAssessmentFailureAbortsGeneration(t *testing.T) {
	boom := errors.New("simulator crashed")
	for _, executor := range []string{"serial", "parallel"} {
		params := testParams()
		params.Executor = executor
		m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{err: boom}, Params: params})
		require.NoError(t, err)
		_, err = m.Init(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Nil(t, m.Population())
	}
}

func TestPerfGoalStopsEarly(t *testing.T) {
	params := testParams()
	params.UsePerfGoal = true
	params.PerfGoal = 0
	m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: params})
	require.NoError(t, err)
	result, err := m.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, result.GoalReached)
	assert.Len(t, result.Diagnostics, 1)
	assert.Equal(t, 0, m.Generation())
}

func TestVariableLengthRun(t *testing.T) {
	params := testParams()
	params.IndivSize = 0
	params.VariableLength = true
	params.IndivSizeMin = 1
	params.IndivSizeMax = 4
	m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: params})
	require.NoError(t, err)
	result, err := m.Run(context.Background(), 4)
	require.NoError(t, err)
	for _, ind := range result.FinalPopulation {
		assert.GreaterOrEqual(t, ind.Len(), 1)
		assert.LessOrEqual(t, ind.Len(), 4)
	}
}

func TestNewPopulationMonitorValidation(t *testing.T) {
	_, err := NewPopulationMonitor(MonitorConfig{Params: testParams()})
	assert.Error(t, err)

	params := testParams()
	params.DefaultAction = 7
	_, err = NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: params})
	assert.ErrorIs(t, err, ErrDefaultNotInSpace)

	params = testParams()
	params.PopSize = 5
	_, err = NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: params})
	assert.Error(t, err)
}

func TestDiagnosticsSummary(t *testing.T) {
	m, err := NewPopulationMonitor(MonitorConfig{Env: &stubEnv{}, Params: testParams()})
	require.NoError(t, err)
	diag, err := m.Init(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, diag.BestPerf, diag.MeanPerf)
	assert.GreaterOrEqual(t, diag.MeanPerf, diag.MinPerf)
	assert.Equal(t, 3.0, diag.MeanRuleCount)
	assert.Greater(t, diag.MeanGenerality, 0.0)
	assert.LessOrEqual(t, diag.MeanGenerality, 1.0)
	assert.Equal(t, 6*11, diag.TimeStepsUsed)
	assert.GreaterOrEqual(t, diag.FingerprintDiversity, 1)

	ranked := m.Ranked()
	for i := 1; i < len(ranked); i++ {
		prev, _ := ranked[i-1].Perf()
		cur, _ := ranked[i].Perf()
		assert.GreaterOrEqual(t, prev, cur)
	}
}
