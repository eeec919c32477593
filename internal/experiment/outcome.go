// Package experiment runs evacuation trials against a simulation link:
// one trial (Runner), a pooled batch of trials (BatchRunner) and an ordered
// set of scenarios written to a results table (Suite).
package experiment

import (
	"errors"
	"time"
)

// ErrTrialTimeout marks a trial abandoned after its per-trial timeout.
var ErrTrialTimeout = errors.New("trial timed out")

// Status classifies how a trial ended.
type Status int

const (
	// Failed means the simulation backend raised; Outcome.Err has the reason.
	Failed Status = iota
	// Evacuated means present == dead was observed; Outcome.Time is valid.
	Evacuated
	// NotEvacuated means the step budget ran out first.
	NotEvacuated
)

func (s Status) String() string {
	switch s {
	case Evacuated:
		return "evacuated"
	case NotEvacuated:
		return "not-evacuated"
	default:
		return "failed"
	}
}

// Outcome is the result of one trial.
type Outcome struct {
	Status Status
	Time   float64 // evacuation step; meaningful only when Status == Evacuated
	Err    error
}

// Present reports whether the outcome carries an evacuation time.
func (o Outcome) Present() bool { return o.Status == Evacuated }

// Trial is one simulation attempt within a batch.
type Trial struct {
	Scenario string
	ID       int
	Seed     string
	Outcome  Outcome
	Worker   int
	Duration time.Duration
}

// Times returns the present outcomes of trials, in slice order.
func Times(trials []Trial) []float64 {
	out := make([]float64, 0, len(trials))
	for _, t := range trials {
		if t.Outcome.Present() {
			out = append(out, t.Outcome.Time)
		}
	}
	return out
}
