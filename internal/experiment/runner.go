package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"evacsim/internal/logging"
	"evacsim/internal/netlogo"
)

// NetLogo reporters and commands of the evacuation model.
const (
	PresentReporter   = "count turtles"
	EvacuatedReporter = "number_passengers - count agents + 1"
	DeadReporter      = "count agents with [ st_dead = 1 ]"
	SeedReporter      = "seed-simulation"
	SetupCommand      = "setup"
	SimulationIDCmd   = "set SIMULATION_ID %d"

	DefaultStepBudget = 2000
)

// RunnerConfig tunes one trial. Zero values take the defaults above; a zero
// TrialTimeout means no per-trial deadline.
type RunnerConfig struct {
	StepBudget        int
	TrialTimeout      time.Duration
	PresentReporter   string
	EvacuatedReporter string
	DeadReporter      string
	SeedReporter      string
	SetupCommand      string
	SimulationIDCmd   string
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.StepBudget <= 0 {
		c.StepBudget = DefaultStepBudget
	}
	if c.PresentReporter == "" {
		c.PresentReporter = PresentReporter
	}
	if c.EvacuatedReporter == "" {
		c.EvacuatedReporter = EvacuatedReporter
	}
	if c.DeadReporter == "" {
		c.DeadReporter = DeadReporter
	}
	if c.SeedReporter == "" {
		c.SeedReporter = SeedReporter
	}
	if c.SetupCommand == "" {
		c.SetupCommand = SetupCommand
	}
	if c.SimulationIDCmd == "" {
		c.SimulationIDCmd = SimulationIDCmd
	}
	return c
}

// errTrialPanic wraps a panic recovered from the link.
var errTrialPanic = errors.New("simulation link panicked")

// Runner executes single trials. It holds no per-trial state and is safe to
// share between workers; the link is not.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner returns a Runner. A nil logger uses logging.New("runner").
func NewRunner(cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.New("runner")
	}
	return &Runner{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective configuration.
func (r *Runner) Config() RunnerConfig { return r.cfg }

// Run executes one trial on link. It never panics and never returns an
// error: every failure is reported as a Failed outcome.
func (r *Runner) Run(ctx context.Context, link netlogo.Link, trialID int, commands []string) (trial Trial) {
	start := time.Now()
	trial = Trial{ID: trialID}
	log := r.logger.With("trial_id", trialID)

	defer func() {
		if p := recover(); p != nil {
			trial.Outcome = Outcome{Status: Failed, Err: fmt.Errorf("%w: %v", errTrialPanic, p)}
		}
		trial.Duration = time.Since(start)
		if trial.Outcome.Status == Failed {
			log.Warn("trial failed", "seed", trial.Seed, "error", trial.Outcome.Err)
		}
	}()

	trialCtx := ctx
	if r.cfg.TrialTimeout > 0 {
		var cancel context.CancelFunc
		trialCtx, cancel = context.WithTimeout(ctx, r.cfg.TrialTimeout)
		defer cancel()
	}

	fail := func(err error) Trial {
		if ctx.Err() == nil && errors.Is(trialCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", ErrTrialTimeout, r.cfg.TrialTimeout, err)
		}
		trial.Outcome = Outcome{Status: Failed, Err: err}
		return trial
	}

	seed, err := link.Report(trialCtx, r.cfg.SeedReporter)
	if err != nil {
		return fail(fmt.Errorf("report seed: %w", err))
	}
	trial.Seed = formatSeed(seed)
	log = log.With("seed", trial.Seed)

	if err := link.Command(trialCtx, r.cfg.SetupCommand); err != nil {
		return fail(fmt.Errorf("%s: %w", r.cfg.SetupCommand, err))
	}
	idCmd := fmt.Sprintf(r.cfg.SimulationIDCmd, trialID)
	if err := link.Command(trialCtx, idCmd); err != nil {
		return fail(fmt.Errorf("%s: %w", idCmd, err))
	}

	if len(commands) == 0 {
		log.Info("no post-setup commands")
	}
	for _, c := range commands {
		if err := link.Command(trialCtx, c); err != nil {
			return fail(fmt.Errorf("%s: %w", c, err))
		}
		log.Info("command executed", "command", c)
	}

	reporters := []string{r.cfg.PresentReporter, r.cfg.EvacuatedReporter, r.cfg.DeadReporter}
	table, err := link.RepeatReport(trialCtx, reporters, r.cfg.StepBudget)
	if err != nil {
		return fail(fmt.Errorf("repeat report: %w", err))
	}

	at, ok, err := evacuationTime(table, r.cfg.PresentReporter, r.cfg.DeadReporter)
	if err != nil {
		return fail(err)
	}
	if !ok {
		trial.Outcome = Outcome{Status: NotEvacuated}
		log.Info("evacuation not finished within step budget", "steps", table.Len())
		return trial
	}
	trial.Outcome = Outcome{Status: Evacuated, Time: at}
	log.Info("evacuation time", "time", at)
	return trial
}

// evacuationTime returns the first step at which present equals dead.
func evacuationTime(t *netlogo.Table, presentName, deadName string) (float64, bool, error) {
	if len(t.Index) != 0 && len(t.Index) != len(t.Rows) {
		return 0, false, fmt.Errorf("table index has %d entries for %d rows", len(t.Index), len(t.Rows))
	}
	present, err := t.Column(presentName)
	if err != nil {
		return 0, false, err
	}
	dead, err := t.Column(deadName)
	if err != nil {
		return 0, false, err
	}
	for i := range present {
		if present[i] == dead[i] {
			at := t.TimeAt(i)
			if at < 0 || math.IsNaN(at) || math.IsInf(at, 0) {
				return 0, false, fmt.Errorf("evacuation time %v at row %d is not a valid step", at, i)
			}
			return at, true, nil
		}
	}
	return 0, false, nil
}

// formatSeed renders a reported seed without exponent notation.
func formatSeed(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// linkUnusable reports whether a failed trial leaves its link in an unknown
// state, so the owning worker must replace it.
func linkUnusable(err error) bool {
	return errors.Is(err, ErrTrialTimeout) ||
		errors.Is(err, netlogo.ErrLinkBroken) ||
		errors.Is(err, errTrialPanic) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
