package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"evacsim/internal/analysis"
	"evacsim/internal/format"
	"evacsim/internal/logging"
	"evacsim/internal/stats"

	"github.com/spf13/cobra"
)

var analyzeFlags struct {
	focus       string
	alternative string
	format      string
	dataDir     string
	fallLengths []int
	samples     int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [results.csv ...]",
	Short: "Describe results CSVs and test the focus scenario against the others",
	Long: `Analyze drops rows with missing values, describes every scenario column and
runs a Mann-Whitney U test of the focus scenario against every other scenario,
reporting Cohen's d and the per-group sample size a t-test would need.

Without arguments it analyses the fall-length experiments in --data-dir:
<data-dir>/<L>_fall_<samples>_samples_experiment_results.csv for every L in
--fall-lengths. Missing fall-length files are skipped with a warning.`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.focus, "focus", analysis.DefaultFocus, "Scenario tested against every other scenario")
	f.StringVar(&analyzeFlags.alternative, "alternative", string(stats.Less), "Alternative hypothesis (two-sided, less, greater)")
	f.StringVar(&analyzeFlags.format, "format", "ascii", "Output format (ascii, markdown)")
	f.StringVar(&analyzeFlags.dataDir, "data-dir", "data", "Directory holding the fall-length result files")
	f.IntSliceVar(&analyzeFlags.fallLengths, "fall-lengths", analysis.DefaultFallLengths, "Fall lengths analysed when no file is given")
	f.IntVar(&analyzeFlags.samples, "samples", 100, "Sample count in the fall-length file names")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	mode, err := format.ParseMode(analyzeFlags.format)
	if err != nil {
		return err
	}
	alt, err := stats.ParseAlternative(analyzeFlags.alternative)
	if err != nil {
		return err
	}

	files := args
	explicit := len(files) > 0
	if !explicit {
		for _, l := range analyzeFlags.fallLengths {
			files = append(files, analysis.FallLengthPath(analyzeFlags.dataDir, l, analyzeFlags.samples))
		}
	}

	log := logging.New("analyze")
	out := cmd.OutOrStdout()
	analysed := 0
	for _, path := range files {
		if !explicit {
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				log.Warn("results file not found, skipping", "path", path)
				continue
			}
		}
		r, err := analysis.AnalyzeFile(path, analyzeFlags.focus, alt)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "CURRENT ANALYSIS: Analysing file %s\n\n", path)
		fmt.Fprintln(out, analysis.Render(r, mode))
		analysed++
	}
	if analysed == 0 {
		return fmt.Errorf("no results files found in %s", analyzeFlags.dataDir)
	}
	return nil
}
