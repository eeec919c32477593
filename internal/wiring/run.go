package wiring

import (
	"context"

	"evacsim/internal/analyser"
	"evacsim/internal/analysis"
	"evacsim/internal/controller"
	"evacsim/internal/experiment"
	"evacsim/internal/scenario"
	"evacsim/internal/sensor"
	"evacsim/internal/stats"
	"evacsim/internal/store"
)

// Study is one experiment followed by its analysis.
type Study struct {
	Samples     int
	ResultsPath string
	Focus       string
	Alternative stats.Alternative
	Store       store.Store // optional
}

// Outcome holds what a Study produced.
type Outcome struct {
	RunID  string
	Report *analysis.Report
}

// Run executes scenarios on batch, writes the results CSV, then reads it
// back and compares the focus scenario against the others.
func (s Study) Run(ctx context.Context, batch *experiment.BatchRunner, scenarios []scenario.Scenario) (*Outcome, error) {
	opts := []experiment.SuiteOption{
		experiment.WithSamples(s.Samples),
		experiment.WithResultsPath(s.ResultsPath),
	}
	if s.Store != nil {
		opts = append(opts, experiment.WithStore(s.Store))
	}
	suite := experiment.NewSuite(batch, opts...)
	if _, err := suite.Run(ctx, scenarios); err != nil {
		return nil, err
	}
	alt := s.Alternative
	if alt == "" {
		alt = stats.Less
	}
	report, err := analysis.AnalyzeFile(s.ResultsPath, s.Focus, alt)
	if err != nil {
		return &Outcome{RunID: suite.RunID()}, err
	}
	return &Outcome{RunID: suite.RunID(), Report: report}, nil
}

// Decide trains a type analyser on the request-for-help data in dataDir and
// returns the shared-identity probability the controller reports for r.
func Decide(ctx context.Context, dataDir string, cfg analyser.TrainConfig, r sensor.Reading) (float64, error) {
	art, err := analyser.TrainFiles(ctx, dataDir, "", "", cfg)
	if err != nil {
		return 0, err
	}
	obs, err := r.Encode(art.Encoder)
	if err != nil {
		return 0, err
	}
	return controller.New(art.Model).SharedIdentityProbability(obs)
}
