package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rulevo/internal/config"
	"rulevo/internal/storage"
	"rulevo/pkg/rulevo"
)

type globalFlags struct {
	store        string
	dbPath       string
	artifactsDir string
	exportsDir   string
	logLevel     string
	logFormat    string
}

type app struct {
	flags  globalFlags
	client *rulevo.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rulevoctl",
		Short:         "Evolve rule-list policies with a Pittsburgh-style genetic algorithm",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.flags.logLevel, a.flags.logFormat)
			if err != nil {
				return err
			}
			client, err := rulevo.New(rulevo.Options{
				StoreKind:    a.flags.store,
				DBPath:       a.flags.dbPath,
				ArtifactsDir: a.flags.artifactsDir,
				ExportsDir:   a.flags.exportsDir,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			a.client = client
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.client == nil {
				return nil
			}
			return a.client.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.store, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	pf.StringVar(&a.flags.dbPath, "db", "rulevo.db", "sqlite database path")
	pf.StringVar(&a.flags.artifactsDir, "artifacts", "runs", "directory for run artifacts and the run index")
	pf.StringVar(&a.flags.exportsDir, "exports", "exports", "default export directory")
	pf.StringVar(&a.flags.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&a.flags.logFormat, "log-format", "auto", "log format: auto|text|json")

	root.AddCommand(
		a.runCmd(),
		a.batchCmd(),
		a.runsCmd(),
		a.diagnosticsCmd(),
		a.topCmd(),
		a.exportCmd(),
		a.envsCmd(),
		a.configCmd(),
	)
	return root
}

// paramFlags are the per-run overrides shared by run, batch and config.
type paramFlags struct {
	configPath string
	env        string
	inference  string
	executor   string
	popSize    int
	workers    int
}

func (p *paramFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&p.configPath, "config", "", "YAML or JSON hyperparameter file")
	f.StringVar(&p.env, "env", "", "environment name (see envs)")
	f.StringVar(&p.inference, "inference", "", "inference strategy: decision_list|specificity")
	f.StringVar(&p.executor, "executor", "", "assessment executor: serial|parallel")
	f.IntVar(&p.popSize, "pop-size", 0, "population size")
	f.IntVar(&p.workers, "workers", 0, "parallel assessment workers (0 = NumCPU)")
}

func (p *paramFlags) load(cmd *cobra.Command) (config.Hyperparams, error) {
	params, err := config.Load(p.configPath)
	if err != nil {
		return params, err
	}
	if p.env != "" {
		params.Env = p.env
	}
	if p.inference != "" {
		params.Inference = p.inference
	}
	if p.executor != "" {
		params.Executor = p.executor
	}
	if cmd.Flags().Changed("pop-size") {
		params.PopSize = p.popSize
	}
	if cmd.Flags().Changed("workers") {
		params.Workers = p.workers
	}
	return params, params.Validate()
}

func (a *app) runCmd() *cobra.Command {
	var (
		pf          paramFlags
		runID       string
		seed        uint64
		generations int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evolutionary search and persist its results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := pf.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				params.Seed = seed
			}
			summary, err := a.client.Run(cmd.Context(), rulevo.RunRequest{
				Params:      &params,
				RunID:       runID,
				Generations: generations,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id=%s env=%s seed=%d\n", summary.RunID, summary.Env, summary.Seed)
			fmt.Fprintf(out, "generations=%d best_perf=%s goal_reached=%t elapsed=%s\n",
				summary.Generations, formatPerf(summary.BestPerf), summary.GoalReached, summary.Elapsed.Round(time.Millisecond))
			steps := 0
			for _, diag := range summary.Diagnostics {
				steps += diag.TimeStepsUsed
			}
			fmt.Fprintf(out, "time_steps=%s\n", humanize.Comma(int64(steps)))
			if summary.ArtifactsDir != "" {
				fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
			}
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "explicit run id (default: random UUID)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&generations, "generations", 0, "generation count override")
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		pf    paramFlags
		seeds string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the same configuration once per seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := pf.load(cmd)
			if err != nil {
				return err
			}
			parsed, err := parseSeeds(seeds)
			if err != nil {
				return err
			}
			batch, err := a.client.RunBatch(cmd.Context(), rulevo.BatchRequest{Params: &params, Seeds: parsed})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEED\tRUN ID\tGENERATIONS\tBEST PERF\tGOAL")
			for _, run := range batch.Runs {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%t\n", run.Seed, run.RunID, run.Generations, formatPerf(run.BestPerf), run.GoalReached)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			s := batch.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "runs=%d best_mean=%s best_std=%s best_min=%s best_max=%s goals=%d\n",
				s.Runs, formatPerf(s.BestMean), formatPerf(s.BestStd), formatPerf(s.BestMin), formatPerf(s.BestMax), s.Goals)
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&seeds, "seeds", "1,2,3", "comma-separated seeds")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.client.Runs(cmd.Context(), rulevo.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tENV\tSEED\tPOP\tGENS\tBEST PERF\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					run.RunID, run.Env, run.Seed, run.PopSize, run.Generations, formatPerf(run.BestPerf), formatCreated(run.CreatedAtUTC))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

type selectorFlags struct {
	runID  string
	latest bool
	limit  int
}

func (s *selectorFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVar(&s.runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&s.latest, "latest", false, "use the most recent run")
	cmd.Flags().IntVar(&s.limit, "limit", defaultLimit, "maximum rows (0 = all)")
}

func (s *selectorFlags) selector() rulevo.RunSelector {
	return rulevo.RunSelector{RunID: s.runID, Latest: s.latest, Limit: s.limit}
}

func (a *app) diagnosticsCmd() *cobra.Command {
	var sel selectorFlags
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-generation diagnostics of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			diagnostics, err := a.client.Diagnostics(cmd.Context(), sel.selector())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GEN\tBEST\tMEAN\tMIN\tSTDDEV\tRULES\tGENERALITY\tASSESSED\tSKIPPED\tSTEPS\tDISTINCT")
			for _, d := range diagnostics {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\t%.3f\t%d\t%d\t%s\t%d\n",
					d.Generation, formatPerf(d.BestPerf), formatPerf(d.MeanPerf), formatPerf(d.MinPerf), formatPerf(d.StdDevPerf),
					d.MeanRuleCount, d.MeanGenerality, d.Assessments, d.SkippedAssessments,
					humanize.Comma(int64(d.TimeStepsUsed)), d.FingerprintDiversity)
			}
			return w.Flush()
		},
	}
	sel.register(cmd, 0)
	return cmd
}

func (a *app) topCmd() *cobra.Command {
	var (
		sel       selectorFlags
		showRules bool
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the best individuals of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			top, err := a.client.TopIndividuals(cmd.Context(), sel.selector())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for rank, ind := range top {
				fmt.Fprintf(out, "#%d id=%s perf=%s time_steps=%s rules=%d fingerprint=%s\n",
					rank+1, ind.ID, formatPerf(ind.Perf), humanize.Comma(int64(ind.TimeStepsUsed)), len(ind.Rules), ind.Fingerprint)
				if !showRules {
					continue
				}
				for _, rule := range ind.Rules {
					bounds := make([]string, len(rule.Intervals))
					for i, interval := range rule.Intervals {
						bounds[i] = fmt.Sprintf("[%g, %g]", interval.Lower, interval.Upper)
					}
					fmt.Fprintf(out, "    %s -> %d (generality %.3f)\n", strings.Join(bounds, " && "), rule.Action, rule.Generality)
				}
			}
			return nil
		},
	}
	sel.register(cmd, 5)
	cmd.Flags().BoolVar(&showRules, "show-rules", false, "print each individual's rules")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exported, err := a.client.Export(cmd.Context(), rulevo.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "", "export directory (default --exports)")
	return cmd
}

func (a *app) envsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List available environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.client.Envs() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	var pf paramFlags
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective hyperparameters after file and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := pf.load(cmd)
			if err != nil {
				return err
			}
			data, err := params.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	pf.register(cmd)
	return cmd
}

func parseSeeds(raw string) ([]uint64, error) {
	var seeds []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seed, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed is required")
	}
	return seeds, nil
}

func formatPerf(v float64) string {
	return humanize.FtoaWithDigits(v, 4)
}

func formatCreated(raw string) string {
	created, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return humanize.Time(created)
}
