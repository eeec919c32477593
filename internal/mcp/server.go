// Package mcp serves the decision controller and the scenario analysis as
// Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"evacsim/internal/analysis"
	"evacsim/internal/controller"
	"evacsim/internal/format"
	"evacsim/internal/logging"
	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/sensor"
	"evacsim/internal/stats"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options configures a Server. Controller and Encoder may be nil, in which
// case get_help_probability reports that no analyser is loaded.
type Options struct {
	Controller  *controller.Controller
	Encoder     sensor.Encoder
	Scenarios   []scenario.Scenario
	ResultsPath string
	Version     string
}

// Server wraps the MCP SDK server.
type Server struct {
	MCPServer *sdkmcp.Server
	Decisions *DecisionLog

	mu   sync.RWMutex
	opts Options
}

// NewServer creates an MCP server with the evacsim tools registered.
func NewServer(opts Options) *Server {
	if opts.Scenarios == nil {
		opts.Scenarios = scenario.Defaults()
	}
	if opts.ResultsPath == "" {
		opts.ResultsPath = results.DefaultPath
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{Decisions: &DecisionLog{}, opts: opts}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "evacsim", Version: opts.Version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// SetAnalyser swaps the controller and encoder used for decisions.
func (s *Server) SetAnalyser(c *controller.Controller, enc sensor.Encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Controller = c
	s.opts.Encoder = enc
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_help_probability",
		Description: "Estimate the probability that a bystander shares the fallen passenger's identity and offers help, from one sensor reading.",
	}, s.handleGetHelpProbability)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "compare_scenarios",
		Description: "Describe an experiment results CSV and test the focus scenario against every other scenario with a Mann-Whitney U test.",
	}, s.handleCompareScenarios)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_scenarios",
		Description: "List the experiment scenarios and their post-setup NetLogo commands.",
	}, s.handleListScenarios)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_decisions",
		Description: "Read the help-probability decisions served so far, or those since a given index.",
	}, s.handleGetDecisions)
}

// --- Tool input/output types ---

type helpProbabilityInput struct {
	SimulationID         int    `json:"simulation_id,omitempty" jsonschema:"simulation the reading belongs to"`
	HelperGender         string `json:"helper_gender" jsonschema:"gender of the potential helper"`
	HelperCulture        string `json:"helper_culture" jsonschema:"culture of the potential helper"`
	HelperAge            string `json:"helper_age" jsonschema:"age group of the potential helper"`
	FallenGender         string `json:"fallen_gender" jsonschema:"gender of the fallen passenger"`
	FallenCulture        string `json:"fallen_culture" jsonschema:"culture of the fallen passenger"`
	FallenAge            string `json:"fallen_age" jsonschema:"age group of the fallen passenger"`
	HelperFallenDistance string `json:"helper_fallen_distance" jsonschema:"distance between helper and fallen passenger"`
	StaffFallenDistance  string `json:"staff_fallen_distance" jsonschema:"distance between nearest staff and fallen passenger"`
}

func (in helpProbabilityInput) reading() sensor.Reading {
	return sensor.Reading{
		HelperGender:         in.HelperGender,
		HelperCulture:        in.HelperCulture,
		HelperAge:            in.HelperAge,
		FallenGender:         in.FallenGender,
		FallenCulture:        in.FallenCulture,
		FallenAge:            in.FallenAge,
		HelperFallenDistance: in.HelperFallenDistance,
		StaffFallenDistance:  in.StaffFallenDistance,
	}
}

type helpProbabilityOutput struct {
	SimulationID int     `json:"simulation_id"`
	Probability  float64 `json:"probability"`
	Features     int     `json:"features"`
}

type compareScenariosInput struct {
	ResultsPath string `json:"results_path,omitempty" jsonschema:"results CSV (default data/experiment_results.csv)"`
	Focus       string `json:"focus,omitempty" jsonschema:"scenario tested against the others (default adaptive-support)"`
	Alternative string `json:"alternative,omitempty" jsonschema:"two-sided, less or greater (default less)"`
}

type scenarioSummary struct {
	Scenario  string   `json:"scenario"`
	Count     int      `json:"count"`
	Mean      float64  `json:"mean"`
	Std       float64  `json:"population_std"`
	SampleStd *float64 `json:"sample_std,omitempty"`
	Min       float64  `json:"min"`
	Median    float64  `json:"median"`
	Max       float64  `json:"max"`
}

type scenarioComparison struct {
	First      string   `json:"first"`
	Second     string   `json:"second"`
	U          float64  `json:"u"`
	PValue     float64  `json:"p_value"`
	Reject     bool     `json:"reject"`
	Decision   string   `json:"decision"`
	EffectSize *float64 `json:"effect_size,omitempty"`
	SampleSize *float64 `json:"sample_size,omitempty"`
}

type compareScenariosOutput struct {
	Source      string               `json:"source"`
	Rows        int                  `json:"rows"`
	Summaries   []scenarioSummary    `json:"summaries"`
	Comparisons []scenarioComparison `json:"comparisons"`
	Report      string               `json:"report"`
}

type listScenariosInput struct{}

type scenarioEntry struct {
	Name     string   `json:"name"`
	Commands []string `json:"commands"`
}

type listScenariosOutput struct {
	Scenarios []scenarioEntry `json:"scenarios"`
}

type getDecisionsInput struct {
	Since int `json:"since,omitempty" jsonschema:"return decisions from this index onward (0-based)"`
}

type getDecisionsOutput struct {
	Decisions []Decision `json:"decisions"`
	Total     int        `json:"total"`
}

// --- Tool handlers ---

func (s *Server) handleGetHelpProbability(ctx context.Context, _ *sdkmcp.CallToolRequest, input helpProbabilityInput) (*sdkmcp.CallToolResult, helpProbabilityOutput, error) {
	s.mu.RLock()
	ctl, enc := s.opts.Controller, s.opts.Encoder
	s.mu.RUnlock()
	if ctl == nil || enc == nil {
		return nil, helpProbabilityOutput{}, errors.New("no type analyser loaded (train one with `evacsim train`)")
	}

	reading := input.reading()
	features, err := reading.Encode(enc)
	if err != nil {
		return nil, helpProbabilityOutput{}, fmt.Errorf("get_help_probability: %w", err)
	}
	p, err := ctl.SharedIdentityProbability(features)
	if err != nil {
		return nil, helpProbabilityOutput{}, fmt.Errorf("get_help_probability: %w", err)
	}

	idx := s.Decisions.Record(input.SimulationID, reading, p)
	logging.New("mcp").Info("decision served", "index", idx, "simulation_id", input.SimulationID, "probability", p)
	return nil, helpProbabilityOutput{SimulationID: input.SimulationID, Probability: p, Features: len(features)}, nil
}

func (s *Server) handleCompareScenarios(ctx context.Context, _ *sdkmcp.CallToolRequest, input compareScenariosInput) (*sdkmcp.CallToolResult, compareScenariosOutput, error) {
	path := input.ResultsPath
	if path == "" {
		s.mu.RLock()
		path = s.opts.ResultsPath
		s.mu.RUnlock()
	}
	focus := input.Focus
	if focus == "" {
		focus = analysis.DefaultFocus
	}
	alt := stats.Less
	if input.Alternative != "" {
		var err error
		if alt, err = stats.ParseAlternative(input.Alternative); err != nil {
			return nil, compareScenariosOutput{}, err
		}
	}

	r, err := analysis.AnalyzeFile(path, focus, alt)
	if err != nil {
		return nil, compareScenariosOutput{}, fmt.Errorf("compare_scenarios: %w", err)
	}

	out := compareScenariosOutput{
		Source:      r.Source,
		Rows:        r.Rows,
		Summaries:   make([]scenarioSummary, 0, len(r.Summaries)),
		Comparisons: make([]scenarioComparison, 0, len(r.Comparisons)),
		Report:      analysis.Render(r, format.Markdown),
	}
	for _, sm := range r.Summaries {
		out.Summaries = append(out.Summaries, scenarioSummary{
			Scenario: sm.Scenario, Count: sm.Count, Mean: sm.Mean, Std: sm.Std, SampleStd: finite(sm.SampleStd),
			Min: sm.Min, Median: sm.Median, Max: sm.Max,
		})
	}
	for _, c := range r.Comparisons {
		out.Comparisons = append(out.Comparisons, scenarioComparison{
			First:      c.First,
			Second:     c.Second,
			U:          c.Test.U,
			PValue:     c.Test.PValue,
			Reject:     c.Reject,
			Decision:   c.Decision(),
			EffectSize: finite(c.EffectSize),
			SampleSize: finite(c.SampleSize),
		})
	}
	return nil, out, nil
}

func (s *Server) handleListScenarios(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listScenariosInput) (*sdkmcp.CallToolResult, listScenariosOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := listScenariosOutput{Scenarios: make([]scenarioEntry, 0, len(s.opts.Scenarios))}
	for _, sc := range s.opts.Scenarios {
		cmds := sc.Commands
		if cmds == nil {
			cmds = []string{}
		}
		out.Scenarios = append(out.Scenarios, scenarioEntry{Name: sc.Name, Commands: cmds})
	}
	return nil, out, nil
}

func (s *Server) handleGetDecisions(ctx context.Context, _ *sdkmcp.CallToolRequest, input getDecisionsInput) (*sdkmcp.CallToolResult, getDecisionsOutput, error) {
	d := s.Decisions.Since(input.Since)
	if d == nil {
		d = []Decision{}
	}
	return nil, getDecisionsOutput{Decisions: d, Total: s.Decisions.Len()}, nil
}

// finite drops NaN and infinities, which JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
