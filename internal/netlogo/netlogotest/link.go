// Package netlogotest provides an in-process scripted netlogo.Link for tests.
// The script is keyed by the simulation id the runner sets with
// "set SIMULATION_ID <n>", so each trial of a batch can be given its own fate.
package netlogotest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"evacsim/internal/netlogo"
)

// Never marks a trial whose agents never all evacuate.
const Never = -1

// Trial scripts what one simulation id does.
type Trial struct {
	EvacuatedAt int   // step index at which present == dead; Never for no evacuation
	Err         error // returned by RepeatReport when non-nil
	Panic       bool  // RepeatReport panics
	Hang        bool  // RepeatReport blocks until ctx is done
}

// Script decides the fate of a simulation id.
type Script func(simID int) Trial

// Evacuates returns a script where every trial evacuates at the given step.
func Evacuates(step int) Script {
	return func(int) Trial { return Trial{EvacuatedAt: step} }
}

// Link is a fake simulation. Safe for inspection from the test goroutine
// while a worker drives it.
type Link struct {
	Script  Script
	Seed    any
	LoadErr error

	mu       sync.Mutex
	model    string
	simID    int
	commands []string
	trials   []int
	closed   bool
}

// New returns a link following script.
func New(script Script) *Link {
	return &Link{Script: script, Seed: "-1234567", simID: -1}
}

func (l *Link) LoadModel(_ context.Context, path string) error {
	if l.LoadErr != nil {
		return l.LoadErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model = path
	return nil
}

func (l *Link) Command(_ context.Context, command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return netlogo.ErrLinkBroken
	}
	if l.model == "" {
		return errors.New("no model loaded")
	}
	l.commands = append(l.commands, command)
	if rest, ok := strings.CutPrefix(command, "set SIMULATION_ID "); ok {
		id, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return fmt.Errorf("bad simulation id %q", rest)
		}
		l.simID = id
		l.trials = append(l.trials, id)
	}
	return nil
}

func (l *Link) Report(_ context.Context, reporter string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, netlogo.ErrLinkBroken
	}
	if reporter == "seed-simulation" {
		return l.Seed, nil
	}
	return 0.0, nil
}

// RepeatReport synthesises a table with 10 agents where one more agent is
// counted dead per step until EvacuatedAt, then present == dead holds.
func (l *Link) RepeatReport(ctx context.Context, reporters []string, reps int) (*netlogo.Table, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, netlogo.ErrLinkBroken
	}
	trial := l.Script(l.simID)
	l.mu.Unlock()

	switch {
	case trial.Hang:
		<-ctx.Done()
		return nil, ctx.Err()
	case trial.Panic:
		panic("scripted link panic")
	case trial.Err != nil:
		return nil, trial.Err
	}
	return EvacuationTable(reporters, reps, trial.EvacuatedAt), nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Model returns the loaded model path.
func (l *Link) Model() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model
}

// Commands returns every command received, in order.
func (l *Link) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commands...)
}

// Trials returns the simulation ids this link ran.
func (l *Link) Trials() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.trials...)
}

// Closed reports whether Close was called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// EvacuationTable builds a reporter table for a run of reps steps. The first
// reporter is taken as "agents present", the last as "agents dead".
func EvacuationTable(reporters []string, reps, evacuatedAt int) *netlogo.Table {
	const agents = 10
	t := &netlogo.Table{Reporters: reporters, Rows: make([][]float64, reps)}
	for step := 0; step < reps; step++ {
		present := float64(agents)
		dead := 0.0
		if evacuatedAt != Never {
			if step >= evacuatedAt {
				dead = present
			} else {
				dead = float64(step % agents)
			}
		}
		row := make([]float64, len(reporters))
		for i := range row {
			row[i] = float64(agents - 1)
		}
		if len(row) > 0 {
			row[0] = present
			row[len(row)-1] = dead
		}
		t.Rows[step] = row
	}
	return t
}

// Pool is a netlogo.Factory that records every link it builds.
type Pool struct {
	Script   Script
	LoadErr  error
	BuildErr error

	mu    sync.Mutex
	links []*Link
}

// Factory returns the netlogo.Factory view of the pool.
func (p *Pool) Factory() netlogo.Factory {
	return func(context.Context) (netlogo.Link, error) {
		if p.BuildErr != nil {
			return nil, p.BuildErr
		}
		l := New(p.Script)
		l.LoadErr = p.LoadErr
		p.mu.Lock()
		p.links = append(p.links, l)
		p.mu.Unlock()
		return l, nil
	}
}

// Links returns the links built so far.
func (p *Pool) Links() []*Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Link(nil), p.links...)
}
