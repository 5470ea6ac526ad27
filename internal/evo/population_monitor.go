package evo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rulevo/internal/agent"
	"rulevo/internal/config"
	"rulevo/internal/genotype"
	"rulevo/internal/inference"
	"rulevo/internal/model"
	"rulevo/internal/scape"
)

var (
	ErrNotInitialized     = errors.New("population not initialized")
	ErrPopulationSize     = errors.New("population size changed")
	ErrDefaultNotInSpace  = errors.New("default action not in action space")
	ErrAlreadyInitialized = errors.New("population already initialized")
)

type MonitorConfig struct {
	Env      scape.Environment
	Params   config.Hyperparams
	Executor Executor
	Logger   *slog.Logger
}

type RunResult struct {
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	FinalPopulation  []*agent.Individual
	Best             *agent.Individual
	GoalReached      bool
}

// PopulationMonitor owns one population and drives it generation by
// generation. It is not safe for concurrent use; only assessment fans out.
type PopulationMonitor struct {
	params   config.Hyperparams
	env      scape.Environment
	ops      Operators
	executor Executor
	logger   *slog.Logger
	rng      *rand.Rand

	population []*agent.Individual
	generation int
	nextID     int
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Env == nil {
		return nil, fmt.Errorf("environment is required")
	}
	params := cfg.Params
	if err := params.Validate(); err != nil {
		return nil, err
	}

	obsSpace := cfg.Env.ObservationSpace()
	actions := cfg.Env.ActionSpace()
	if err := actions.Validate(); err != nil {
		return nil, fmt.Errorf("environment %s: %w", cfg.Env.Name(), err)
	}
	encoding, err := genotype.NewEncoding(obsSpace, genotype.EncodingParams{
		PMut:         params.PMut,
		MNought:      params.MNought,
		RNought:      params.RNought,
		MutSigmaPcnt: params.MutSigmaPcnt,
	})
	if err != nil {
		return nil, fmt.Errorf("environment %s: %w", cfg.Env.Name(), err)
	}

	strategy, err := inference.FromName(params.Inference, scape.Action(params.DefaultAction))
	if err != nil {
		return nil, err
	}
	if def := strategy.DefaultAction(); def != scape.NoAction && !actions.Contains(def) {
		return nil, fmt.Errorf("%w: %d", ErrDefaultNotInSpace, def)
	}
	selectable := inference.SelectableActions(actions, strategy)
	if len(selectable) == 0 {
		return nil, ErrNoSelectableAction
	}

	executor := cfg.Executor
	if executor == nil {
		executor, err = NewExecutor(params.Executor, params.Workers)
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &PopulationMonitor{
		params:   params,
		env:      cfg.Env,
		executor: executor,
		logger:   logger.With(slog.String("env", cfg.Env.Name())),
		rng:      rand.New(rand.NewPCG(params.Seed, params.Seed)),
	}
	m.ops = Operators{
		Encoding:       encoding,
		Strategy:       strategy,
		Actions:        selectable,
		PCross:         params.PCross,
		PCrossSwap:     params.PCrossSwap,
		PMut:           params.PMut,
		IndivSize:      params.IndivSize,
		IndivSizeMin:   params.IndivSizeMin,
		IndivSizeMax:   params.IndivSizeMax,
		VariableLength: params.IsVariableLength(),
		UseCache:       params.UseIndivPolicyCache,
		NewID:          m.newID,
	}
	if err := m.ops.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PopulationMonitor) newID() string {
	m.nextID++
	return "ind-" + strconv.Itoa(m.nextID)
}

// Population returns a copy of the current population.
func (m *PopulationMonitor) Population() []*agent.Individual {
	return slices.Clone(m.population)
}

func (m *PopulationMonitor) Generation() int {
	return m.generation
}

// Init builds and assesses a random population of pop_size individuals.
func (m *PopulationMonitor) Init(ctx context.Context) (model.GenerationDiagnostics, error) {
	if m.population != nil {
		return model.GenerationDiagnostics{}, ErrAlreadyInitialized
	}
	ctx, span := tracer.Start(ctx, "evo.Init", trace.WithAttributes(
		attribute.String("env", m.env.Name()),
		attribute.Int("pop_size", m.params.PopSize),
	))
	defer span.End()
	started := time.Now()

	population := make([]*agent.Individual, m.params.PopSize)
	for i := range population {
		population[i] = m.ops.RandomIndividual(m.rng)
	}
	assessed, tally, err := m.assess(ctx, population)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.GenerationDiagnostics{}, err
	}
	m.population = assessed

	diag := m.summarize(tally)
	m.observe(diag, time.Since(started))
	span.SetStatus(codes.Ok, "")
	return diag, nil
}

// RunGen advances one generation: elites are carried over as flagged clones,
// the remaining slots are bred in pairs, and offspring without a perf result
// are assessed.
func (m *PopulationMonitor) RunGen(ctx context.Context) (model.GenerationDiagnostics, error) {
	if m.population == nil {
		return model.GenerationDiagnostics{}, ErrNotInitialized
	}
	ctx, span := tracer.Start(ctx, "evo.RunGen", trace.WithAttributes(
		attribute.String("env", m.env.Name()),
		attribute.Int("generation", m.generation+1),
	))
	defer span.End()
	fail := func(err error) (model.GenerationDiagnostics, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.GenerationDiagnostics{}, err
	}
	started := time.Now()

	current := make([]*agent.Individual, len(m.population))
	for i, ind := range m.population {
		if !ind.HasPerf() {
			return fail(fmt.Errorf("individual %s: %w", ind.ID(), agent.ErrUnsetPerf))
		}
		if ind.IsElite() {
			ind = ind.WithElite(false)
		}
		current[i] = ind
	}

	ranked := slices.Clone(current)
	slices.SortStableFunc(ranked, func(a, b *agent.Individual) int {
		pa, _ := a.Perf()
		pb, _ := b.Perf()
		return cmp.Compare(pb, pa)
	})

	next := make([]*agent.Individual, 0, m.params.PopSize)
	for _, ind := range ranked[:m.params.NumElites] {
		next = append(next, ind.Clone(m.newID()).WithElite(true))
	}

	rounds := (m.params.PopSize - m.params.NumElites) / 2
	offspring := make([]*agent.Individual, 0, 2*rounds)
	for round := 0; round < rounds; round++ {
		parentA, err := TournamentSelect(m.rng, current, m.params.TournSize)
		if err != nil {
			return fail(err)
		}
		parentB, err := TournamentSelect(m.rng, current, m.params.TournSize)
		if err != nil {
			return fail(err)
		}
		childA, childB, err := m.ops.Crossover(m.rng, parentA, parentB)
		if err != nil {
			return fail(fmt.Errorf("generation %d crossover: %w", m.generation+1, err))
		}
		offspring = append(offspring, m.ops.Mutate(m.rng, childA), m.ops.Mutate(m.rng, childB))
	}
	// A parent that survives crossover and mutation untouched comes back as
	// itself; repeats become clones so every slot has its own id.
	seen := make(map[*agent.Individual]struct{}, len(offspring))
	for i, child := range offspring {
		if _, dup := seen[child]; dup {
			offspring[i] = child.Clone(m.newID())
			continue
		}
		seen[child] = struct{}{}
	}

	offspring, tally, err := m.assess(ctx, offspring)
	if err != nil {
		return fail(fmt.Errorf("generation %d: %w", m.generation+1, err))
	}
	next = append(next, offspring...)
	if len(next) != m.params.PopSize {
		return fail(fmt.Errorf("%w: got %d want %d", ErrPopulationSize, len(next), m.params.PopSize))
	}

	m.population = next
	m.generation++
	diag := m.summarize(tally)
	m.observe(diag, time.Since(started))
	span.SetAttributes(attribute.Float64("best_perf", diag.BestPerf))
	span.SetStatus(codes.Ok, "")
	return diag, nil
}

// Run initializes the population when needed and then advances up to
// generations generations (the configured count when generations <= 0),
// stopping early once perf_goal is reached if it is enabled.
func (m *PopulationMonitor) Run(ctx context.Context, generations int) (RunResult, error) {
	if generations <= 0 {
		generations = m.params.Generations
	}
	result := RunResult{
		BestByGeneration: make([]float64, 0, generations+1),
		Diagnostics:      make([]model.GenerationDiagnostics, 0, generations+1),
	}
	record := func(diag model.GenerationDiagnostics) bool {
		result.BestByGeneration = append(result.BestByGeneration, diag.BestPerf)
		result.Diagnostics = append(result.Diagnostics, diag)
		return m.params.UsePerfGoal && diag.BestPerf >= m.params.PerfGoal
	}

	if m.population == nil {
		diag, err := m.Init(ctx)
		if err != nil {
			return RunResult{}, err
		}
		result.GoalReached = record(diag)
	}
	for gen := 0; gen < generations && !result.GoalReached; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		diag, err := m.RunGen(ctx)
		if err != nil {
			return RunResult{}, err
		}
		result.GoalReached = record(diag)
	}
	if result.GoalReached {
		m.logger.Info("perf goal reached",
			slog.Int("generation", m.generation),
			slog.Float64("perf_goal", m.params.PerfGoal))
	}

	result.FinalPopulation = m.Population()
	result.Best = m.Best()
	return result, nil
}

// Best returns the highest-perf individual, earliest on ties, or nil before
// Init.
func (m *PopulationMonitor) Best() *agent.Individual {
	var (
		best     *agent.Individual
		bestPerf float64
	)
	for _, ind := range m.population {
		perf, err := ind.Perf()
		if err != nil {
			continue
		}
		if best == nil || perf > bestPerf {
			best, bestPerf = ind, perf
		}
	}
	return best
}

// Ranked returns the population sorted by perf, best first.
func (m *PopulationMonitor) Ranked() []*agent.Individual {
	ranked := slices.Clone(m.population)
	slices.SortStableFunc(ranked, func(a, b *agent.Individual) int {
		pa, _ := a.Perf()
		pb, _ := b.Perf()
		return cmp.Compare(pb, pa)
	})
	return ranked
}

type assessTally struct {
	assessed  int
	skipped   int
	timeSteps int
}

// assess fills in perf results for every individual lacking one. Each
// distinct instance is assessed once; results are matched back by index.
func (m *PopulationMonitor) assess(ctx context.Context, population []*agent.Individual) ([]*agent.Individual, assessTally, error) {
	ctx, span := tracer.Start(ctx, "evo.assess")
	defer span.End()

	var (
		tally   assessTally
		pending []*agent.Individual
		slots   = make(map[*agent.Individual][]int)
	)
	for i, ind := range population {
		if ind.HasPerf() {
			tally.skipped++
			continue
		}
		if _, seen := slots[ind]; !seen {
			pending = append(pending, ind)
		}
		slots[ind] = append(slots[ind], i)
	}
	if tally.skipped > 0 {
		m.logger.Debug("skipping assessment of unchanged individuals", slog.Int("skipped", tally.skipped))
	}

	results := make([]scape.PerfResult, len(pending))
	err := m.executor.Map(ctx, len(pending), func(ctx context.Context, i int) error {
		result, err := m.env.Assess(ctx, pending[i], m.params.NumRollouts, m.params.Gamma)
		if err != nil {
			return fmt.Errorf("assess individual %s: %w", pending[i].ID(), err)
		}
		results[i] = result
		return nil
	})
	if err != nil {
		recordAssessmentFailure(m.env.Name())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, tally, err
	}

	out := slices.Clone(population)
	for i, ind := range pending {
		assessed := ind.WithPerf(results[i])
		for _, slot := range slots[ind] {
			out[slot] = assessed
		}
		tally.assessed++
		tally.timeSteps += results[i].TimeStepsUsed
	}
	recordAssessments(m.env.Name(), tally.assessed, tally.skipped)
	span.SetAttributes(
		attribute.Int("assessed", tally.assessed),
		attribute.Int("skipped", tally.skipped),
	)
	return out, tally, nil
}

func (m *PopulationMonitor) summarize(tally assessTally) model.GenerationDiagnostics {
	perfs := make([]float64, 0, len(m.population))
	ruleCounts := make([]float64, 0, len(m.population))
	generalities := make([]float64, 0, len(m.population))
	fingerprints := make(map[string]struct{}, len(m.population))
	for _, ind := range m.population {
		if perf, err := ind.Perf(); err == nil {
			perfs = append(perfs, perf)
		}
		sig := agent.ComputeSignature(ind)
		fingerprints[sig.Fingerprint] = struct{}{}
		ruleCounts = append(ruleCounts, float64(sig.Summary.TotalRules))
		generalities = append(generalities, sig.Summary.MeanGenerality)
	}

	diag := model.GenerationDiagnostics{
		Generation:           m.generation,
		MeanRuleCount:        stat.Mean(ruleCounts, nil),
		MeanGenerality:       stat.Mean(generalities, nil),
		Assessments:          tally.assessed,
		SkippedAssessments:   tally.skipped,
		TimeStepsUsed:        tally.timeSteps,
		FingerprintDiversity: len(fingerprints),
	}
	if len(perfs) > 0 {
		diag.BestPerf = floats.Max(perfs)
		diag.MinPerf = floats.Min(perfs)
		diag.MeanPerf = stat.Mean(perfs, nil)
	}
	if len(perfs) > 1 {
		diag.StdDevPerf = stat.StdDev(perfs, nil)
	}
	return diag
}

func (m *PopulationMonitor) observe(diag model.GenerationDiagnostics, elapsed time.Duration) {
	env := m.env.Name()
	generationsTotal.WithLabelValues(env).Inc()
	generationDuration.WithLabelValues(env).Observe(elapsed.Seconds())
	bestPerfGauge.WithLabelValues(env).Set(diag.BestPerf)

	m.logger.Info("generation complete",
		slog.Int("generation", diag.Generation),
		slog.Float64("best_perf", diag.BestPerf),
		slog.Float64("mean_perf", diag.MeanPerf),
		slog.Int("assessed", diag.Assessments),
		slog.Int("skipped", diag.SkippedAssessments),
		slog.Int("distinct", diag.FingerprintDiversity),
		slog.Duration("elapsed", elapsed),
	)
}
