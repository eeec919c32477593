// Package analysis compares the evacuation-time columns of a results table:
// a summary per scenario, then a rank test and required sample size for the
// focus scenario against each of the others.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/stats"
)

// DefaultFocus is the scenario compared against every other column.
const DefaultFocus = scenario.AdaptiveSupport

// DefaultFallLengths are the fall lengths of the published experiment files.
var DefaultFallLengths = []int{360, 420, 480, 540, 600}

// FallLengthPath returns the results file of one fall-length experiment,
// e.g. data/360_fall_100_samples_experiment_results.csv.
func FallLengthPath(dir string, fallLength, samples int) string {
	name := strconv.Itoa(fallLength) + "_fall_" + strconv.Itoa(samples) + "_samples_experiment_results.csv"
	return filepath.Join(dir, name)
}

// ColumnSummary is the description of one scenario column.
type ColumnSummary struct {
	Scenario string
	stats.Summary
}

// Comparison is the focus scenario tested against one other scenario.
type Comparison struct {
	stats.Hypothesis
	EffectSize float64
	SampleSize float64 // NaN when the effect is zero
}

// Report is the analysis of one results table.
type Report struct {
	Source      string
	Rows        int // complete rows kept after dropping missing values
	Summaries   []ColumnSummary
	Comparisons []Comparison
}

// Analyze drops every row with a missing value, describes each column, then
// tests focus against every other column with the given alternative.
func Analyze(t *results.Table, focus string, alt stats.Alternative) (*Report, error) {
	if t == nil || len(t.Columns) == 0 {
		return nil, errors.New("results table has no columns")
	}
	if _, ok := t.Column(focus); !ok {
		return nil, fmt.Errorf("focus scenario %q not in table (have %v)", focus, t.Names())
	}
	complete := t.DropMissing()
	if complete.Rows() == 0 {
		return nil, fmt.Errorf("no complete rows: %w", stats.ErrEmptySample)
	}

	r := &Report{Rows: complete.Rows()}
	summaries := make(map[string]stats.Summary, len(complete.Columns))
	for _, c := range complete.Columns {
		s, err := stats.Describe(c.Values)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", c.Name, err)
		}
		summaries[c.Name] = s
		r.Summaries = append(r.Summaries, ColumnSummary{Scenario: c.Name, Summary: s})
	}

	focusValues, _ := complete.Column(focus)
	fs := summaries[focus]
	for _, c := range complete.Columns {
		if c.Name == focus {
			continue
		}
		h, err := stats.TestHypothesis(focus, focusValues, c.Name, c.Values, alt)
		if err != nil {
			return nil, err
		}
		other := summaries[c.Name]
		comp := Comparison{
			Hypothesis: h,
			EffectSize: stats.CohenD(fs.Mean, other.Mean, fs.Std, other.Std),
			SampleSize: math.NaN(),
		}
		if n, err := stats.SampleSize(fs.Mean, other.Mean, fs.Std, other.Std, stats.DefaultAlpha, stats.DefaultPower); err == nil {
			comp.SampleSize = n
		}
		r.Comparisons = append(r.Comparisons, comp)
	}
	return r, nil
}

// AnalyzeFile reads a results CSV and analyses it.
func AnalyzeFile(path, focus string, alt stats.Alternative) (*Report, error) {
	t, err := results.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Analyze(t, focus, alt)
	if err != nil {
		return nil, fmt.Errorf("analyse %s: %w", path, err)
	}
	r.Source = path
	return r, nil
}
