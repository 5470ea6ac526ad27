// Package rulevo is the public entry point for running rule-list evolution
// and reading back what earlier runs produced.
package rulevo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"rulevo/internal/config"
	"rulevo/internal/model"
	"rulevo/internal/platform"
	"rulevo/internal/scape"
	"rulevo/internal/stats"
	"rulevo/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "rulevo.db"
	defaultRunsLimit    = 20
)

var ErrNoRuns = errors.New("no runs available")

type (
	Hyperparams           = config.Hyperparams
	GenerationDiagnostics = model.GenerationDiagnostics
	IndividualRecord      = model.IndividualRecord
	RunSummary            = platform.RunSummary
	BatchResult           = platform.BatchResult
)

type Options struct {
	StoreKind        string
	DBPath           string
	ArtifactsDir     string
	ExportsDir       string
	Logger           *slog.Logger
	BatchConcurrency int
}

type Client struct {
	store  storage.Store
	runner *platform.Runner

	artifactsDir string
	exportsDir   string
	initialized  bool
}

type RunRequest struct {
	// Params wins over ConfigPath. With neither, Load("") supplies defaults
	// plus RULEVO_* overrides.
	Params      *Hyperparams
	ConfigPath  string
	RunID       string
	Generations int
}

type BatchRequest struct {
	Params     *Hyperparams
	ConfigPath string
	Seeds      []uint64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string  `json:"run_id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Env          string  `json:"env"`
	Seed         uint64  `json:"seed"`
	PopSize      int     `json:"pop_size"`
	Generations  int     `json:"generations"`
	Inference    string  `json:"inference"`
	BestPerf     float64 `json:"best_perf"`
	GoalReached  bool    `json:"goal_reached"`
}

// RunSelector names a run either by id or as the most recent one.
type RunSelector struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	runner, err := platform.NewRunner(platform.Config{
		Store:            store,
		ArtifactsDir:     artifactsDir,
		Logger:           opts.Logger,
		BatchConcurrency: opts.BatchConcurrency,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		runner:       runner,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.runner.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Envs lists the registered environments.
func (c *Client) Envs() []string {
	return scape.List()
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	params, err := resolveParams(req.Params, req.ConfigPath)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	return c.runner.Run(ctx, platform.RunRequest{
		RunID:       req.RunID,
		Params:      params,
		Generations: req.Generations,
	})
}

func (c *Client) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	params, err := resolveParams(req.Params, req.ConfigPath)
	if err != nil {
		return BatchResult{}, err
	}
	if err := c.Init(ctx); err != nil {
		return BatchResult{}, err
	}
	return c.runner.RunBatch(ctx, params, req.Seeds)
}

// Runs lists indexed runs, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Env:          e.Env,
			Seed:         e.Seed,
			PopSize:      e.PopSize,
			Generations:  e.Generations,
			Inference:    e.Inference,
			BestPerf:     e.BestPerf,
			GoalReached:  e.GoalReached,
		})
	}
	return out, nil
}

// Diagnostics reads per-generation diagnostics from the store, falling back
// to the run's artifacts.
func (c *Client) Diagnostics(ctx context.Context, sel RunSelector) ([]GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(sel.RunID, sel.Latest)
	if err != nil {
		return nil, err
	}
	if sel.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if sel.Limit > 0 && len(diagnostics) > sel.Limit {
		diagnostics = diagnostics[:sel.Limit]
	}
	return diagnostics, nil
}

// TopIndividuals reads the best individuals of a run, best first.
func (c *Client) TopIndividuals(ctx context.Context, sel RunSelector) ([]IndividualRecord, error) {
	runID, err := c.resolveRunID(sel.RunID, sel.Latest)
	if err != nil {
		return nil, err
	}
	if sel.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	top, ok, err := c.store.GetTopIndividuals(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		top, ok, err = stats.ReadTopIndividuals(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("top individuals not found for run id: %s", runID)
	}
	if sel.Limit > 0 && len(top) > sel.Limit {
		top = top[:sel.Limit]
	}
	return top, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id or latest is required")
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNoRuns
	}
	return entries[0].RunID, nil
}

func resolveParams(params *Hyperparams, path string) (Hyperparams, error) {
	if params != nil {
		return *params, nil
	}
	return config.Load(path)
}
