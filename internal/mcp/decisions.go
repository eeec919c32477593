package mcp

import (
	"sync"
	"time"

	"evacsim/internal/logging"
	"evacsim/internal/sensor"
)

// Decision is one help-probability answer served to a client.
type Decision struct {
	Timestamp    string         `json:"ts"`
	SimulationID int            `json:"simulation_id"`
	Reading      sensor.Reading `json:"reading"`
	Probability  float64        `json:"probability"`
}

// DecisionLog is a thread-safe, append-only record of served decisions.
type DecisionLog struct {
	mu        sync.Mutex
	decisions []Decision
}

// Record appends a decision and returns its index.
func (l *DecisionLog) Record(simulationID int, r sensor.Reading, p float64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, Decision{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		SimulationID: simulationID,
		Reading:      r,
		Probability:  p,
	})
	return len(l.decisions) - 1
}

// Since returns a copy of the decisions from idx onward.
func (l *DecisionLog) Since(idx int) []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx < 0 {
		logging.New("mcp").Warn("decision log read with negative index, clamping to 0", "index", idx)
		idx = 0
	}
	if idx >= len(l.decisions) {
		return nil
	}
	out := make([]Decision, len(l.decisions)-idx)
	copy(out, l.decisions[idx:])
	return out
}

// Len returns the number of recorded decisions.
func (l *DecisionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.decisions)
}
