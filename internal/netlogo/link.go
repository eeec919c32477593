// Package netlogo talks to an external NetLogo evacuation model through a
// bridge process. A Link is exclusive to one worker: it is not safe to share
// a Link between goroutines that issue commands concurrently.
package netlogo

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrLinkBroken is returned once a link has lost sync with its bridge
	// (a call was abandoned mid-flight, or the process exited).
	ErrLinkBroken = errors.New("netlogo link broken")

	// ErrUnknownReporter is returned by Table.Column for a reporter the table
	// was not sampled with.
	ErrUnknownReporter = errors.New("unknown reporter")
)

// Link is the remote-procedure surface of one simulation process.
type Link interface {
	// LoadModel opens a .nlogo model file. Called once per link.
	LoadModel(ctx context.Context, path string) error
	// Command runs a NetLogo command (e.g. "setup").
	Command(ctx context.Context, command string) error
	// Report evaluates a reporter and returns its scalar value.
	Report(ctx context.Context, reporter string) (any, error)
	// RepeatReport runs "go" reps times, sampling every reporter after each step.
	RepeatReport(ctx context.Context, reporters []string, reps int) (*Table, error)
	// Close tears the simulation process down.
	Close() error
}

// Factory builds a fresh link. Each worker calls it once at startup.
type Factory func(ctx context.Context) (Link, error)

// Table is a per-step time series of reporter values.
type Table struct {
	Reporters []string    `json:"reporters"`
	Index     []float64   `json:"index,omitempty"` // time index per row; row number when empty
	Rows      [][]float64 `json:"rows"`
}

// Len returns the number of sampled steps.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// TimeAt returns the time index of row i.
func (t *Table) TimeAt(i int) float64 {
	if i < len(t.Index) {
		return t.Index[i]
	}
	return float64(i)
}

// Column returns the series sampled for reporter.
func (t *Table) Column(reporter string) ([]float64, error) {
	col := -1
	for i, r := range t.Reporters {
		if r == reporter {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReporter, reporter)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		if col >= len(row) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(t.Reporters))
		}
		out[i] = row[col]
	}
	return out, nil
}
