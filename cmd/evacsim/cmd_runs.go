package main

import (
	"fmt"
	"io"
	"time"

	"evacsim/internal/format"
	"evacsim/internal/store"

	"github.com/spf13/cobra"
)

var runsFlags struct {
	db     string
	format string
}

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded experiment runs, or the trials of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.StringVar(&runsFlags.db, "db", "", "SQLite store (default from config, "+store.DefaultDBPath+")")
	f.StringVar(&runsFlags.format, "format", "ascii", "Output format (ascii, markdown)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	mode, err := format.ParseMode(runsFlags.format)
	if err != nil {
		return err
	}
	path := runsFlags.db
	if path == "" {
		path = cfg.DBPath
	}
	if path == "" {
		path = store.DefaultDBPath
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return printRun(out, st, args[0], mode)
	}

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded in %s\n", path)
		return nil
	}
	tb := format.NewTable(mode)
	tb.Header("Run", "Status", "Started", "Elapsed", "Samples", "Workers", "Scenarios")
	for _, r := range runs {
		elapsed := "-"
		if !r.FinishedAt.IsZero() {
			elapsed = format.Duration(r.FinishedAt.Sub(r.StartedAt))
		}
		tb.Row(r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), elapsed,
			format.Count(r.Samples), r.Workers, len(r.Scenarios))
	}
	fmt.Fprintln(out, tb.String())
	return nil
}

func printRun(out io.Writer, st store.Store, id string, mode format.Mode) error {
	run, err := st.GetRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Model:    %s\n", run.ModelFile)
	fmt.Fprintf(out, "Results:  %s\n\n", run.ResultsPath)

	tb := format.NewTable(mode)
	tb.Header("Scenario", "Trials", "Evacuated", "Not evacuated", "Failed")
	for _, name := range run.Scenarios {
		trials, err := st.ListTrials(run.ID, name)
		if err != nil {
			return err
		}
		counts := map[string]int{}
		for _, t := range trials {
			counts[t.Status]++
		}
		tb.Row(name, len(trials), counts["evacuated"], counts["not-evacuated"], counts["failed"])
	}
	fmt.Fprintln(out, tb.String())
	return nil
}
