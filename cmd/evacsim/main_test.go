package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"evacsim/internal/config"
	"evacsim/internal/netlogo"
	"evacsim/internal/netlogo/netlogotest"
	"evacsim/internal/results"
	"evacsim/internal/sensor"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--log-level=error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScenarios_ListsDefaults(t *testing.T) {
	out, err := execute(t, "scenarios")
	if err != nil {
		t.Fatalf("scenarios: %v", err)
	}
	for _, want := range []string{"no-support", "staff-support", "passenger-support", "adaptive-support", "set REQUEST_STAFF_SUPPORT TRUE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestExperiment_WritesResultsAndRecordsRun(t *testing.T) {
	pool := &netlogotest.Pool{Script: func(id int) netlogotest.Trial {
		return netlogotest.Trial{EvacuatedAt: 300 + id}
	}}
	orig := newLinkFactory
	newLinkFactory = func(*config.Config) (netlogo.Factory, error) { return pool.Factory(), nil }
	t.Cleanup(func() { newLinkFactory = orig })

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "experiment_results.csv")
	dbPath := filepath.Join(dir, "evacsim.db")
	out, err := execute(t, "experiment",
		"--samples=3", "--workers=2",
		"--scenario=adaptive-support", "--scenario=no-support",
		"--results="+csvPath, "--db="+dbPath)
	if err != nil {
		t.Fatalf("experiment: %v", err)
	}
	if !strings.Contains(out, "Data written to "+csvPath) {
		t.Errorf("output:\n%s", out)
	}

	tbl, err := results.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.Join(tbl.Names(), ","); got != "adaptive-support,no-support" {
		t.Errorf("columns = %s", got)
	}
	if tbl.Rows() != 3 {
		t.Errorf("rows = %d, want 3", tbl.Rows())
	}

	out, err = execute(t, "runs", "--db="+dbPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "complete") {
		t.Errorf("runs output lacks completed run:\n%s", out)
	}
}

func TestAnalyze_ExplicitFile(t *testing.T) {
	tbl := &results.Table{}
	_ = tbl.Add("no-support", []float64{410, 420, 430, 440, 450, 460, 470, 480, 490, 500})
	_ = tbl.Add("adaptive-support", []float64{200, 210, 220, 230, 240, 250, 260, 270, 280, 290})
	path := filepath.Join(t.TempDir(), "results.csv")
	if err := results.WriteFile(path, tbl); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "analyze", path)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{"CURRENT ANALYSIS: Analysing file " + path, "REJECT NULL HYPOTHESIS", "stochastically less than"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func writeTrainingData(t *testing.T, dir string) {
	t.Helper()
	header := strings.Join(append(append([]string(nil), sensor.Columns...), "offer-help"), ",")
	for i := 0; i < 3; i++ {
		var b strings.Builder
		b.WriteString(header + "\n")
		for j := 0; j < 12; j++ {
			culture, help := "a", 1
			if j%2 == 1 {
				culture, help = "b", 0
			}
			fmt.Fprintf(&b, "female,a,adult,male,%s,elderly,near,far,%d\n", culture, help)
		}
		name := filepath.Join(dir, fmt.Sprintf("%d_request-for-help-results.csv", i))
		if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTrainThenDecide(t *testing.T) {
	dataDir := t.TempDir()
	writeTrainingData(t, dataDir)
	outDir := t.TempDir()
	modelPath := filepath.Join(outDir, "trained_model.json")
	encoderPath := filepath.Join(outDir, "encoder.json")

	out, err := execute(t, "train", "--data-dir="+dataDir, "--model="+modelPath, "--encoder="+encoderPath,
		"--max-epochs=50", "--batch-size=8", "--learning-rate=0.05")
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !strings.Contains(out, "Model:            "+modelPath) {
		t.Errorf("train output:\n%s", out)
	}

	out, err = execute(t, "decide", "--model="+modelPath, "--encoder="+encoderPath,
		"1", "female", "a", "adult", "male", "a", "elderly", "near", "far")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		t.Fatalf("decide output %q is not a probability", out)
	}
	if p <= 0.5 || p > 1 {
		t.Errorf("p(shared culture) = %v, want above 0.5", p)
	}

	if _, err := execute(t, "decide", "--model="+modelPath, "--encoder="+encoderPath,
		"1", "female", "a", "adult", "male", "zz", "elderly", "near", "far"); err == nil {
		t.Error("unseen category should fail")
	}
}

func TestDecide_ArgumentCount(t *testing.T) {
	if _, err := execute(t, "decide", "1", "female"); err == nil {
		t.Error("decide with two arguments should fail")
	}
}

func TestRoot_RejectsBadLogFormat(t *testing.T) {
	if _, err := execute(t, "--log-format=xml", "scenarios"); err == nil {
		t.Error("unknown log format should fail")
	}
	rootFlags.logFormat = "text"
}
