// Package metrics exposes experiment progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"evacsim/internal/experiment"
	"evacsim/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evacsim"

// Recorder counts finished trials. It satisfies experiment.Observer.
type Recorder struct {
	trials     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	evacuation *prometheus.HistogramVec
}

var _ experiment.Observer = (*Recorder)(nil)

// NewRecorder registers the trial metrics on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Finished simulation trials by scenario and outcome.",
		}, []string{"scenario", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_duration_seconds",
			Help:      "Wall-clock time of one simulation trial.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"scenario"}),
		evacuation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evacuation_ticks",
			Help:      "Simulation ticks until every surviving agent left.",
			Buckets:   prometheus.LinearBuckets(100, 100, 20),
		}, []string{"scenario"}),
	}
	for _, c := range []prometheus.Collector{r.trials, r.duration, r.evacuation} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// TrialDone records one finished trial.
func (r *Recorder) TrialDone(t experiment.Trial) {
	r.trials.WithLabelValues(t.Scenario, t.Outcome.Status.String()).Inc()
	r.duration.WithLabelValues(t.Scenario).Observe(t.Duration.Seconds())
	if t.Outcome.Present() {
		r.evacuation.WithLabelValues(t.Scenario).Observe(t.Outcome.Time)
	}
}

// NewRegistry returns a registry with the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve exposes reg at /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return serve(ctx, ln, reg)
}

func serve(ctx context.Context, ln net.Listener, reg *prometheus.Registry) error {
	log := logging.New("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.Info("metrics listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
