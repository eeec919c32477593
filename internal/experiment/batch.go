package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"evacsim/internal/logging"
	"evacsim/internal/netlogo"

	"golang.org/x/sync/errgroup"
)

// Observer is notified of every finished trial, one at a time and in arrival
// order, from the batch's collector goroutine.
type Observer interface {
	TrialDone(Trial)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Trial)

func (f ObserverFunc) TrialDone(t Trial) { f(t) }

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

// WithWorkers sets the pool size. Values below 1 mean runtime.NumCPU().
func WithWorkers(n int) BatchOption {
	return func(b *BatchRunner) { b.workers = n }
}

// WithModelFile sets the model every worker loads once at startup.
func WithModelFile(path string) BatchOption {
	return func(b *BatchRunner) { b.modelFile = path }
}

// WithObserver adds an observer of finished trials.
func WithObserver(o Observer) BatchOption {
	return func(b *BatchRunner) { b.observers = append(b.observers, o) }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(b *BatchRunner) { b.logger = l }
}

// BatchRunner fans trials out over a pool of workers, each owning one link
// for its whole lifetime.
type BatchRunner struct {
	factory   netlogo.Factory
	runner    *Runner
	workers   int
	modelFile string
	observers []Observer
	logger    *slog.Logger
}

// NewBatchRunner returns a BatchRunner building links with factory.
func NewBatchRunner(factory netlogo.Factory, runner *Runner, opts ...BatchOption) *BatchRunner {
	b := &BatchRunner{factory: factory, runner: runner}
	for _, o := range opts {
		o(b)
	}
	if b.workers < 1 {
		b.workers = runtime.NumCPU()
	}
	if b.runner == nil {
		b.runner = NewRunner(RunnerConfig{}, nil)
	}
	if b.logger == nil {
		b.logger = logging.New("batch")
	}
	return b
}

// Workers returns the configured pool size.
func (b *BatchRunner) Workers() int { return b.workers }

// ModelFile returns the model path loaded by each worker.
func (b *BatchRunner) ModelFile() string { return b.modelFile }

// RunBatch runs n trials and returns the evacuation times of the trials that
// produced one, in arrival order.
func (b *BatchRunner) RunBatch(ctx context.Context, n int, commands []string) ([]float64, error) {
	trials, err := b.RunTrials(ctx, "", n, commands)
	if err != nil {
		return nil, err
	}
	return Times(trials), nil
}

// RunTrials runs trials 0..n-1 and returns every trial in arrival order.
// Only a pool that cannot start is an error; trial failures are carried in
// each Trial's Outcome. When ctx is cancelled no further trials are
// dispatched and the trials finished so far are returned with ctx's error.
func (b *BatchRunner) RunTrials(ctx context.Context, scenario string, n int, commands []string) ([]Trial, error) {
	if n <= 0 {
		return nil, nil
	}
	workers := min(b.workers, n)
	log := b.logger.With("scenario", scenario)
	start := time.Now()

	links, err := b.startPool(ctx, workers)
	if err != nil {
		return nil, err
	}
	log.Info("batch started", "trials", n, "workers", workers, "commands", commands,
		"step_budget", b.runner.Config().StepBudget)

	jobs := make(chan int)
	results := make(chan Trial, n)
	collected := make(chan []Trial, 1)

	go func() {
		out := make([]Trial, 0, n)
		for t := range results {
			for _, o := range b.observers {
				o.TrialDone(t)
			}
			out = append(out, t)
		}
		collected <- out
	}()

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for id := 0; id < n; id++ {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for w, link := range links {
		g.Go(func() error {
			b.work(ctx, w, link, scenario, commands, jobs, results)
			return nil
		})
	}
	_ = g.Wait() // trial errors are captured in Trial.Outcome
	close(results)
	trials := <-collected

	var evacuated, notEvacuated, failed int
	for _, t := range trials {
		switch t.Outcome.Status {
		case Evacuated:
			evacuated++
		case NotEvacuated:
			notEvacuated++
		default:
			failed++
		}
	}
	log.Info("batch finished",
		"evacuated", evacuated, "not_evacuated", notEvacuated, "failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return trials, fmt.Errorf("batch %s interrupted after %d of %d trials: %w", scenario, len(trials), n, err)
	}
	return trials, nil
}

// startPool opens one link per worker before any trial is dispatched. If any
// worker cannot start, every link opened so far is closed.
func (b *BatchRunner) startPool(ctx context.Context, workers int) ([]netlogo.Link, error) {
	links := make([]netlogo.Link, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			l, err := b.openLink(gctx)
			if err != nil {
				return fmt.Errorf("start worker %d: %w", w, err)
			}
			links[w] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, l := range links {
			if l != nil {
				_ = l.Close()
			}
		}
		return nil, err
	}
	return links, nil
}

func (b *BatchRunner) openLink(ctx context.Context) (netlogo.Link, error) {
	l, err := b.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build simulation link: %w", err)
	}
	if b.modelFile != "" {
		if err := l.LoadModel(ctx, b.modelFile); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("load model %s: %w", b.modelFile, err)
		}
	}
	return l, nil
}

// work drains jobs on one link. A link left unusable by a failed trial is
// replaced before the next trial; if no replacement can be built, the
// worker's remaining trials fail without running.
func (b *BatchRunner) work(ctx context.Context, w int, link netlogo.Link, scenario string, commands []string,
	jobs <-chan int, results chan<- Trial,
) {
	log := b.logger.With("worker", w, "scenario", scenario)
	defer func() {
		if link != nil {
			if err := link.Close(); err != nil {
				log.Warn("close link", "error", err)
			}
		}
	}()

	for id := range jobs {
		if link == nil {
			l, err := b.openLink(ctx)
			if err != nil {
				results <- Trial{
					Scenario: scenario,
					ID:       id,
					Worker:   w,
					Outcome:  Outcome{Status: Failed, Err: fmt.Errorf("rebuild link: %w", err)},
				}
				continue
			}
			link = l
			log.Info("link rebuilt")
		}

		t := b.runner.Run(ctx, link, id, commands)
		t.Scenario = scenario
		t.Worker = w
		results <- t

		if t.Outcome.Status == Failed && linkUnusable(t.Outcome.Err) {
			log.Warn("discarding link", "trial_id", id, "error", t.Outcome.Err)
			_ = link.Close()
			link = nil
		}
	}
}
