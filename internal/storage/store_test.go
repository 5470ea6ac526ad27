package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/model"
)

func sampleRun(id string, started time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		Env:             "corridor",
		Seed:            7,
		Inference:       "decision_list",
		PopSize:         20,
		Generations:     5,
		BestPerf:        -5.5,
		StartedAt:       started,
		FinishedAt:      started.Add(time.Second),
	}
}

func sampleIndividuals() []model.IndividualRecord {
	return []model.IndividualRecord{{
		VersionedRecord: CurrentVersion(),
		ID:              "ind-3",
		Fingerprint:     "abcd",
		Perf:            -5.5,
		TimeStepsUsed:   55,
		Rules: []model.RuleRecord{{
			Intervals:  []model.IntervalRecord{{Lower: 0, Upper: 9}},
			Alleles:    []float64{9, 0},
			Action:     1,
			Generality: 10.0 / 11.0,
		}},
	}}
}

// exerciseStore runs the same persistence checks against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, sampleRun("run-b", base.Add(time.Minute))))
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-a", base)))

	run, ok, err := store.GetRun(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "corridor", run.Env)
	assert.Equal(t, -5.5, run.BestPerf)
	assert.True(t, run.StartedAt.Equal(base), "started at %v", run.StartedAt)

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// oldest first
	assert.Equal(t, "run-a", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)

	require.NoError(t, store.SaveFitnessHistory(ctx, "run-a", []float64{-9, -7, -5.5}))
	history, ok, err := store.GetFitnessHistory(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{-9, -7, -5.5}, history)

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 0, BestPerf: -9, Assessments: 20},
		{Generation: 1, BestPerf: -7, Assessments: 12, SkippedAssessments: 6},
	}
	require.NoError(t, store.SaveGenerationDiagnostics(ctx, "run-a", diagnostics))
	loadedDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, diagnostics, loadedDiagnostics)

	require.NoError(t, store.SaveTopIndividuals(ctx, "run-a", sampleIndividuals()))
	top, ok, err := store.GetTopIndividuals(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, top, 1)
	assert.Equal(t, 1, top[0].Rules[0].Action)
	assert.Equal(t, 9.0, top[0].Rules[0].Intervals[0].Upper)

	_, ok, err = store.GetTopIndividuals(ctx, "run-b")
	require.NoError(t, err)
	assert.False(t, ok)
}
