package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulevo/internal/config"
	"rulevo/internal/stats"
	"rulevo/internal/storage"
)

func smallParams() config.Hyperparams {
	h := config.Default()
	h.PopSize = 8
	h.NumElites = 2
	h.IndivSize = 4
	h.NumRollouts = 3
	h.Generations = 3
	h.Executor = config.ExecutorSerial
	return h
}

func newRunner(t *testing.T, artifactsDir string) *Runner {
	t.Helper()
	runner, err := NewRunner(Config{Store: storage.NewMemoryStore(), ArtifactsDir: artifactsDir, TopN: 3, BatchConcurrency: 2})
	require.NoError(t, err)
	require.NoError(t, runner.Init(context.Background()))
	return runner
}

func TestRunPersistsEverything(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runner := newRunner(t, dir)

	summary, err := runner.Run(ctx, RunRequest{RunID: "run-1", Params: smallParams()})
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "corridor", summary.Env)
	assert.Equal(t, 3, summary.Generations)
	assert.Len(t, summary.BestByGeneration, 4)
	assert.Len(t, summary.Diagnostics, 4)
	require.Len(t, summary.Top, 3)
	assert.Equal(t, summary.Top[0].Perf, summary.BestPerf)
	assert.GreaterOrEqual(t, summary.Top[0].Perf, summary.Top[1].Perf)
	assert.NotEmpty(t, summary.Top[0].Fingerprint)
	assert.Len(t, summary.Top[0].Rules, 4)

	run, ok, err := runner.Store().GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary.BestPerf, run.BestPerf)
	assert.Contains(t, run.ConfigYAML, "pop_size: 8")

	history, ok, err := runner.Store().GetFitnessHistory(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary.BestByGeneration, history)

	fromDisk, ok, err := stats.ReadFitnessHistory(dir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary.BestByGeneration, fromDisk)

	index, err := stats.ListRunIndex(dir)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "run-1", index[0].RunID)
}

func TestRunGeneratesRunID(t *testing.T) {
	runner := newRunner(t, "")
	summary, err := runner.Run(context.Background(), RunRequest{Params: smallParams(), Generations: 1})
	require.NoError(t, err)
	assert.Len(t, summary.RunID, 36)
	assert.Equal(t, 1, summary.Generations)
	assert.Empty(t, summary.ArtifactsDir)
}

func TestRunRejectsBadInput(t *testing.T) {
	runner := newRunner(t, "")

	params := smallParams()
	params.Env = "no-such-env"
	_, err := runner.Run(context.Background(), RunRequest{Params: params})
	require.Error(t, err)

	params = smallParams()
	params.PopSize = 7
	_, err = runner.Run(context.Background(), RunRequest{Params: params})
	require.ErrorIs(t, err, config.ErrInvalidHyperparams)
}

func TestRunRequiresInit(t *testing.T) {
	runner, err := NewRunner(Config{Store: storage.NewMemoryStore()})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), RunRequest{Params: smallParams()})
	require.ErrorIs(t, err, ErrRunnerNotInitialized)
}

func TestRunBatchKeepsSeedOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runner := newRunner(t, dir)
	seeds := []uint64{11, 12, 13, 14}

	batch, err := runner.RunBatch(ctx, smallParams(), seeds)
	require.NoError(t, err)
	require.Len(t, batch.Runs, len(seeds))
	for i, run := range batch.Runs {
		assert.Equal(t, seeds[i], run.Seed)
	}
	assert.Equal(t, len(seeds), batch.Summary.Runs)
	assert.GreaterOrEqual(t, batch.Summary.BestMax, batch.Summary.BestMin)
	require.Len(t, batch.Summary.MeanCurve, len(batch.Runs[0].BestByGeneration))
	for _, point := range batch.Summary.MeanCurve {
		assert.Equal(t, len(seeds), point.Runs)
	}

	runs, err := runner.Store().ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, len(seeds))

	index, err := stats.ListRunIndex(dir)
	require.NoError(t, err)
	assert.Len(t, index, len(seeds))
}

func TestRunBatchIsDeterministicPerSeed(t *testing.T) {
	runner := newRunner(t, "")
	first, err := runner.RunBatch(context.Background(), smallParams(), []uint64{5, 6})
	require.NoError(t, err)
	second, err := runner.RunBatch(context.Background(), smallParams(), []uint64{5, 6})
	require.NoError(t, err)
	for i := range first.Runs {
		assert.Equal(t, first.Runs[i].BestByGeneration, second.Runs[i].BestByGeneration)
	}
}

func TestRunBatchFailsFast(t *testing.T) {
	runner := newRunner(t, "")
	params := smallParams()
	params.Env = "missing"
	_, err := runner.RunBatch(context.Background(), params, []uint64{1, 2})
	require.Error(t, err)

	_, err = runner.RunBatch(context.Background(), smallParams(), nil)
	require.Error(t, err)
}
