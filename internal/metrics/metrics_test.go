package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"evacsim/internal/experiment"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func trial(scenario string, status experiment.Status, at float64) experiment.Trial {
	return experiment.Trial{
		Scenario: scenario,
		Outcome:  experiment.Outcome{Status: status, Time: at},
		Duration: 1500 * time.Millisecond,
	}
}

func TestRecorder_CountsByScenarioAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.TrialDone(trial("no-support", experiment.Evacuated, 420))
	r.TrialDone(trial("no-support", experiment.Evacuated, 380))
	r.TrialDone(trial("no-support", experiment.Failed, 0))
	r.TrialDone(trial("adaptive-support", experiment.NotEvacuated, 0))

	out := scrape(t, reg)
	for _, want := range []string{
		`evacsim_trials_total{scenario="no-support",status="evacuated"} 2`,
		`evacsim_trials_total{scenario="no-support",status="failed"} 1`,
		`evacsim_trials_total{scenario="adaptive-support",status="not-evacuated"} 1`,
		`evacsim_evacuation_ticks_count{scenario="no-support"} 2`,
		`evacsim_evacuation_ticks_sum{scenario="no-support"} 800`,
		`evacsim_trial_duration_seconds_count{scenario="adaptive-support"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output lacks %q:\n%s", want, out)
		}
	}
	// Only evacuated trials carry a time.
	if strings.Contains(out, `evacsim_evacuation_ticks_count{scenario="adaptive-support"}`) {
		t.Errorf("non-evacuated trial observed an evacuation time:\n%s", out)
	}
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestNewRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRecorder(reg); err != nil {
		t.Fatalf("first NewRecorder: %v", err)
	}
	if _, err := NewRecorder(reg); err == nil {
		t.Error("second registration on the same registry should fail")
	}
}

func TestServe_ExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	r, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.TrialDone(trial("staff-support", experiment.Evacuated, 300))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, reg) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `evacsim_trials_total{scenario="staff-support",status="evacuated"} 1`) {
		t.Errorf("metrics output lacks trial counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
