// Package stats holds the two-sample statistics used to compare scenario
// evacuation times: descriptive summaries, Cohen's d, t-test sample size and
// the Mann-Whitney U rank test.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptySample is returned for statistics over an empty sample.
var ErrEmptySample = errors.New("empty sample")

// Summary describes one sample. Std is the population standard deviation
// used by the effect-size formulas; SampleStd (n-1 denominator) is the one
// printed in reports. SampleStd is NaN for a single value.
type Summary struct {
	Count     int
	Mean      float64
	Std       float64
	SampleStd float64
	Min       float64
	Q1        float64
	Median    float64
	Q3        float64
	Max       float64
}

// Describe summarises values. NaN values are an error.
func Describe(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmptySample
	}
	if floats.HasNaN(values) {
		return Summary{}, fmt.Errorf("sample contains missing values")
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	sampleStd := math.NaN()
	if len(sorted) > 1 {
		sampleStd = stat.StdDev(sorted, nil)
	}
	return Summary{
		Count:     len(sorted),
		Mean:      mean,
		Std:       std,
		SampleStd: sampleStd,
		Min:       sorted[0],
		Q1:        quantile(sorted, 0.25),
		Median:    quantile(sorted, 0.5),
		Q3:        quantile(sorted, 0.75),
		Max:       sorted[len(sorted)-1],
	}, nil
}

// quantile interpolates linearly between closest ranks at position p*(n-1).
// sorted must be ascending and non-empty.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := math.Floor(pos)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-lo)*(sorted[i+1]-sorted[i])
}
