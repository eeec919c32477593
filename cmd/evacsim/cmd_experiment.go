package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"evacsim/internal/config"
	"evacsim/internal/experiment"
	"evacsim/internal/format"
	"evacsim/internal/logging"
	"evacsim/internal/metrics"
	"evacsim/internal/netlogo"
	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/stats"

	"github.com/spf13/cobra"
)

var experimentFlags struct {
	samples      int
	workers      int
	scenarios    []string
	results      string
	modelFile    string
	bridge       string
	stepBudget   int
	trialTimeout time.Duration
	db           string
	format       string
}

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Run every scenario against the NetLogo model and write the results CSV",
	Long: `Experiment runs each scenario in catalogue order. Every scenario gets a batch of
--samples trials spread over a pool of bridge processes, one per worker. Each
trial reports its evacuation time; failed trials are logged and left out.

The results CSV has one column per scenario and one row per trial index.`,
	RunE: runExperiment,
}

func init() {
	f := experimentCmd.Flags()
	f.IntVar(&experimentFlags.samples, "samples", 0, "Trials per scenario (default from config, 100)")
	f.IntVar(&experimentFlags.workers, "workers", 0, "Parallel bridge processes (default one per CPU)")
	f.StringSliceVar(&experimentFlags.scenarios, "scenario", nil, "Run only these scenarios, in the given order (repeatable)")
	f.StringVar(&experimentFlags.results, "results", "", "Results CSV path (default "+results.DefaultPath+")")
	f.StringVar(&experimentFlags.modelFile, "model-file", "", "NetLogo model file (default $"+config.EnvModelFile+" or config)")
	f.StringVar(&experimentFlags.bridge, "bridge", "", "Bridge command line (default $"+config.EnvBridge+" or config)")
	f.IntVar(&experimentFlags.stepBudget, "step-budget", 0, "Simulation steps before a trial counts as not evacuated (default 2000)")
	f.DurationVar(&experimentFlags.trialTimeout, "trial-timeout", 0, "Per-trial deadline; 0 = none")
	f.StringVar(&experimentFlags.db, "db", "", "Record the run in this SQLite store (default from config; empty = off)")
	f.StringVar(&experimentFlags.format, "format", "ascii", "Summary format (ascii, markdown)")
}

// newLinkFactory builds the factory workers use to open bridge links.
// Tests replace it with a scripted pool.
var newLinkFactory = func(c *config.Config) (netlogo.Factory, error) {
	if len(c.Bridge.Command) == 0 {
		return nil, fmt.Errorf("no bridge command configured (set --bridge, $%s or bridge.command)", config.EnvBridge)
	}
	return netlogo.ProcessFactory(netlogo.ProcessConfig{
		Command:     c.Bridge.Command,
		Dir:         c.Bridge.Dir,
		GracePeriod: c.Bridge.GracePeriod.Duration,
		Logger:      logging.New("netlogo"),
	}), nil
}

func applyExperimentFlags(c *config.Config) {
	if experimentFlags.samples > 0 {
		c.Experiment.Samples = experimentFlags.samples
	}
	if experimentFlags.workers > 0 {
		c.Experiment.Workers = experimentFlags.workers
	}
	if experimentFlags.results != "" {
		c.Experiment.ResultsPath = experimentFlags.results
	}
	if experimentFlags.modelFile != "" {
		c.Experiment.ModelFile = experimentFlags.modelFile
	}
	if experimentFlags.bridge != "" {
		c.Bridge.Command = strings.Fields(experimentFlags.bridge)
	}
	if experimentFlags.stepBudget > 0 {
		c.Experiment.StepBudget = experimentFlags.stepBudget
	}
	if experimentFlags.trialTimeout > 0 {
		c.Experiment.TrialTimeout.Duration = experimentFlags.trialTimeout
	}
	if experimentFlags.db != "" {
		c.DBPath = experimentFlags.db
	}
}

func runExperiment(cmd *cobra.Command, _ []string) error {
	mode, err := format.ParseMode(experimentFlags.format)
	if err != nil {
		return err
	}
	applyExperimentFlags(cfg)

	list, err := cfg.ScenarioList()
	if err != nil {
		return err
	}
	if len(experimentFlags.scenarios) > 0 {
		if list, err = scenario.Select(list, experimentFlags.scenarios); err != nil {
			return err
		}
	}

	factory, err := newLinkFactory(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	batchOpts := []experiment.BatchOption{
		experiment.WithWorkers(cfg.Experiment.Workers),
		experiment.WithModelFile(cfg.Experiment.ModelFile),
	}
	if cfg.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		rec, err := metrics.NewRecorder(reg)
		if err != nil {
			return err
		}
		batchOpts = append(batchOpts, experiment.WithObserver(rec))
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logging.New("metrics").Error("metrics server stopped", "error", err)
			}
		}()
	}

	runner := experiment.NewRunner(cfg.RunnerConfig(), logging.New("runner"))
	batch := experiment.NewBatchRunner(factory, runner, batchOpts...)

	suiteOpts := []experiment.SuiteOption{
		experiment.WithSamples(cfg.Experiment.Samples),
		experiment.WithResultsPath(cfg.Experiment.ResultsPath),
	}
	st, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if st != nil {
		defer st.Close()
		suiteOpts = append(suiteOpts, experiment.WithStore(st))
	}
	suite := experiment.NewSuite(batch, suiteOpts...)

	start := time.Now()
	table, err := suite.Run(ctx, list)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, experimentSummary(table, cfg.Experiment.Samples, mode))
	fmt.Fprintf(out, "Simulation finished after %s\n", format.Duration(time.Since(start)))
	fmt.Fprintf(out, "Data written to %s (run %s)\n", cfg.Experiment.ResultsPath, suite.RunID())
	return nil
}

func experimentSummary(t *results.Table, samples int, mode format.Mode) string {
	tb := format.NewTable(mode)
	tb.Header("Scenario", "Evacuated", "Mean", "Median", "Min", "Max")
	tb.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, Align: format.AlignRight},
		format.ColumnConfig{Number: 6, Align: format.AlignRight},
	)
	for _, c := range t.Columns {
		done := fmt.Sprintf("%s/%s", format.Count(len(c.Values)), format.Count(samples))
		s, err := stats.Describe(c.Values)
		if err != nil {
			tb.Row(c.Name, done, "-", "-", "-", "-")
			continue
		}
		tb.Row(c.Name, done, format.Float(s.Mean, 1), format.Float(s.Median, 1), format.Float(s.Min, 0), format.Float(s.Max, 0))
	}
	return tb.String() + "\n"
}
