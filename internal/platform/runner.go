package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"rulevo/internal/agent"
	"rulevo/internal/config"
	"rulevo/internal/evo"
	"rulevo/internal/model"
	"rulevo/internal/scape"
	"rulevo/internal/stats"
	"rulevo/internal/storage"
)

const defaultTopN = 5

var ErrRunnerNotInitialized = errors.New("runner is not initialized")

type Config struct {
	Store storage.Store
	// ArtifactsDir receives one directory per run; empty disables artifacts.
	ArtifactsDir string
	Logger       *slog.Logger
	// TopN is how many ranked individuals are persisted per run.
	TopN int
	// BatchConcurrency bounds concurrent runs in RunBatch; <= 0 means NumCPU.
	BatchConcurrency int
}

type RunRequest struct {
	// RunID defaults to a random UUID.
	RunID  string
	Params config.Hyperparams
	// Generations overrides Params.Generations when > 0.
	Generations int
}

type RunSummary struct {
	RunID            string                        `json:"run_id"`
	Env              string                        `json:"env"`
	Seed             uint64                        `json:"seed"`
	Generations      int                           `json:"generations"`
	BestPerf         float64                       `json:"best_perf"`
	GoalReached      bool                          `json:"goal_reached"`
	BestByGeneration []float64                     `json:"best_by_generation"`
	Diagnostics      []model.GenerationDiagnostics `json:"diagnostics"`
	Top              []model.IndividualRecord      `json:"top"`
	ArtifactsDir     string                        `json:"artifacts_dir,omitempty"`
	Elapsed          time.Duration                 `json:"elapsed"`
}

type BatchResult struct {
	Runs    []RunSummary       `json:"runs"`
	Summary stats.BatchSummary `json:"summary"`
}

// Runner wires configuration, environments, the population monitor, the
// store and on-disk artifacts together.
type Runner struct {
	store            storage.Store
	artifactsDir     string
	logger           *slog.Logger
	topN             int
	batchConcurrency int
	initialized      bool

	// serializes run index read-modify-write across batch runs
	indexMu sync.Mutex
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Runner{
		store:            cfg.Store,
		artifactsDir:     cfg.ArtifactsDir,
		logger:           logger,
		topN:             topN,
		batchConcurrency: concurrency,
	}, nil
}

func (r *Runner) Init(ctx context.Context) error {
	if err := r.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	r.initialized = true
	return nil
}

func (r *Runner) Store() storage.Store {
	return r.store
}

func (r *Runner) ArtifactsDir() string {
	return r.artifactsDir
}

// Run executes one evolutionary run and persists its outputs.
func (r *Runner) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if !r.initialized {
		return RunSummary{}, ErrRunnerNotInitialized
	}
	params := req.Params
	if req.Generations > 0 {
		params.Generations = req.Generations
	}
	if err := params.Validate(); err != nil {
		return RunSummary{}, err
	}
	env, err := scape.Resolve(params.Env)
	if err != nil {
		return RunSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := r.logger.With(slog.String("run_id", runID))

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Env:    env,
		Params: params,
		Logger: logger,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}

	started := time.Now().UTC()
	logger.Info("run started",
		slog.String("env", env.Name()),
		slog.Uint64("seed", params.Seed),
		slog.Int("generations", params.Generations))
	result, err := monitor.Run(ctx, params.Generations)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	finished := time.Now().UTC()

	ranked := monitor.Ranked()
	top := make([]model.IndividualRecord, 0, r.topN)
	for _, ind := range ranked[:min(r.topN, len(ranked))] {
		record, err := ToIndividualRecord(ind)
		if err != nil {
			return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
		}
		top = append(top, record)
	}

	summary := RunSummary{
		RunID:            runID,
		Env:              env.Name(),
		Seed:             params.Seed,
		Generations:      monitor.Generation(),
		GoalReached:      result.GoalReached,
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		Top:              top,
		Elapsed:          finished.Sub(started),
	}
	if len(top) > 0 {
		summary.BestPerf = top[0].Perf
	}

	if r.artifactsDir != "" {
		dir, err := stats.WriteRunArtifacts(r.artifactsDir, stats.RunArtifacts{
			RunID:                 runID,
			Config:                params,
			BestByGeneration:      result.BestByGeneration,
			GenerationDiagnostics: result.Diagnostics,
			TopIndividuals:        top,
		})
		if err != nil {
			return RunSummary{}, fmt.Errorf("write artifacts for run %s: %w", runID, err)
		}
		summary.ArtifactsDir = dir
		r.indexMu.Lock()
		err = stats.AppendRunIndex(r.artifactsDir, stats.RunIndexEntry{
			RunID:        runID,
			Env:          summary.Env,
			PopSize:      params.PopSize,
			Generations:  summary.Generations,
			Seed:         params.Seed,
			Inference:    params.Inference,
			BestPerf:     summary.BestPerf,
			GoalReached:  summary.GoalReached,
			CreatedAtUTC: finished.Format(time.RFC3339Nano),
		})
		r.indexMu.Unlock()
		if err != nil {
			return RunSummary{}, fmt.Errorf("index run %s: %w", runID, err)
		}
	}

	if err := r.persist(ctx, summary, params, started, finished); err != nil {
		return RunSummary{}, fmt.Errorf("persist run %s: %w", runID, err)
	}
	logger.Info("run finished",
		slog.Float64("best_perf", summary.BestPerf),
		slog.Int("generations", summary.Generations),
		slog.Bool("goal_reached", summary.GoalReached),
		slog.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (r *Runner) persist(ctx context.Context, summary RunSummary, params config.Hyperparams, started, finished time.Time) error {
	cfgYAML, err := params.YAML()
	if err != nil {
		return err
	}
	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              summary.RunID,
		Env:             summary.Env,
		Seed:            summary.Seed,
		Inference:       params.Inference,
		PopSize:         params.PopSize,
		Generations:     summary.Generations,
		BestPerf:        summary.BestPerf,
		GoalReached:     summary.GoalReached,
		StartedAt:       started,
		FinishedAt:      finished,
		ConfigYAML:      string(cfgYAML),
		ArtifactsDir:    summary.ArtifactsDir,
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return err
	}
	if err := r.store.SaveFitnessHistory(ctx, summary.RunID, summary.BestByGeneration); err != nil {
		return err
	}
	if err := r.store.SaveGenerationDiagnostics(ctx, summary.RunID, summary.Diagnostics); err != nil {
		return err
	}
	return r.store.SaveTopIndividuals(ctx, summary.RunID, summary.Top)
}

// RunBatch runs params once per seed, at most BatchConcurrency at a time.
// Results come back in seed order. The first failure cancels the rest.
func (r *Runner) RunBatch(ctx context.Context, params config.Hyperparams, seeds []uint64) (BatchResult, error) {
	if len(seeds) == 0 {
		return BatchResult{}, fmt.Errorf("at least one seed is required")
	}
	runs := make([]RunSummary, len(seeds))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(r.batchConcurrency)
	for i, seed := range seeds {
		p.Go(func(ctx context.Context) error {
			runParams := params
			runParams.Seed = seed
			summary, err := r.Run(ctx, RunRequest{Params: runParams})
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			runs[i] = summary
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return BatchResult{}, err
	}

	curves := make([][]float64, len(runs))
	goals := 0
	for i, run := range runs {
		curves[i] = run.BestByGeneration
		if run.GoalReached {
			goals++
		}
	}
	return BatchResult{Runs: runs, Summary: stats.SummarizeBatch(curves, goals)}, nil
}

// ToIndividualRecord converts an assessed individual into its persisted
// form.
func ToIndividualRecord(ind *agent.Individual) (model.IndividualRecord, error) {
	perf, err := ind.PerfResult()
	if err != nil {
		return model.IndividualRecord{}, fmt.Errorf("individual %s: %w", ind.ID(), err)
	}
	rules := ind.Rules()
	record := model.IndividualRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              ind.ID(),
		Fingerprint:     agent.ComputeSignature(ind).Fingerprint,
		Perf:            perf.Perf,
		TimeStepsUsed:   perf.TimeStepsUsed,
		Rules:           make([]model.RuleRecord, len(rules)),
	}
	for i, rule := range rules {
		phenotype := rule.Condition.Phenotype()
		intervals := make([]model.IntervalRecord, len(phenotype))
		for j, interval := range phenotype {
			intervals[j] = model.IntervalRecord{Lower: interval.Lower, Upper: interval.Upper}
		}
		record.Rules[i] = model.RuleRecord{
			Intervals:  intervals,
			Alleles:    rule.Condition.Alleles(),
			Action:     int(rule.Action),
			Generality: rule.Generality(),
		}
	}
	return record, nil
}
