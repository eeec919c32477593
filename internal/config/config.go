// Package config loads the evacsim configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evacsim/internal/analyser"
	"evacsim/internal/experiment"
	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/store"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvBridge    = "EVACSIM_BRIDGE"
	EnvModelFile = "EVACSIM_MODEL_FILE"
)

// DefaultModelFile is the NetLogo evacuation model loaded by every link.
const DefaultModelFile = "v2.11.0.nlogo"

// Duration is a time.Duration written as "30s" or "2m" in config files.
type Duration struct{ time.Duration }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Bridge describes the NetLogo bridge subprocess.
type Bridge struct {
	Command     []string `json:"command" yaml:"command"`
	Dir         string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	GracePeriod Duration `json:"grace_period,omitempty" yaml:"grace_period,omitempty"`
}

// Experiment tunes suite runs.
type Experiment struct {
	ModelFile     string              `json:"model_file" yaml:"model_file"`
	Samples       int                 `json:"samples" yaml:"samples"`
	Workers       int                 `json:"workers,omitempty" yaml:"workers,omitempty"` // 0 = one per CPU
	StepBudget    int                 `json:"step_budget" yaml:"step_budget"`
	TrialTimeout  Duration            `json:"trial_timeout,omitempty" yaml:"trial_timeout,omitempty"`
	ResultsPath   string              `json:"results_path" yaml:"results_path"`
	ScenariosFile string              `json:"scenarios_file,omitempty" yaml:"scenarios_file,omitempty"`
	Scenarios     []scenario.Scenario `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
}

// Analyser locates the type analyser artefacts and training data.
type Analyser struct {
	ModelFile      string  `json:"model_file" yaml:"model_file"`
	EncoderFile    string  `json:"encoder_file" yaml:"encoder_file"`
	TrainingDir    string  `json:"training_dir" yaml:"training_dir"`
	MaxEpochs      int     `json:"max_epochs" yaml:"max_epochs"`
	BatchSize      int     `json:"batch_size" yaml:"batch_size"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`
	TargetAccuracy float64 `json:"target_accuracy,omitempty" yaml:"target_accuracy,omitempty"`
}

// Config is the whole configuration file.
type Config struct {
	Bridge      Bridge     `json:"bridge" yaml:"bridge"`
	Experiment  Experiment `json:"experiment" yaml:"experiment"`
	Analyser    Analyser   `json:"analyser" yaml:"analyser"`
	DBPath      string     `json:"db_path,omitempty" yaml:"db_path,omitempty"` // empty = no run store
	MetricsAddr string     `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Experiment.ModelFile == "" {
		c.Experiment.ModelFile = DefaultModelFile
	}
	if c.Experiment.Samples <= 0 {
		c.Experiment.Samples = experiment.DefaultSamples
	}
	if c.Experiment.StepBudget <= 0 {
		c.Experiment.StepBudget = experiment.DefaultStepBudget
	}
	if c.Experiment.ResultsPath == "" {
		c.Experiment.ResultsPath = results.DefaultPath
	}
	if c.Analyser.ModelFile == "" {
		c.Analyser.ModelFile = analyser.DefaultModelFile
	}
	if c.Analyser.EncoderFile == "" {
		c.Analyser.EncoderFile = analyser.DefaultEncoderFile
	}
	if c.Analyser.TrainingDir == "" {
		c.Analyser.TrainingDir = "data/training"
	}
	if c.Analyser.MaxEpochs <= 0 {
		c.Analyser.MaxEpochs = analyser.DefaultMaxEpochs
	}
	if c.Analyser.BatchSize <= 0 {
		c.Analyser.BatchSize = analyser.DefaultBatchSize
	}
	if c.Analyser.LearningRate <= 0 {
		c.Analyser.LearningRate = analyser.DefaultLearningRate
	}
}

// Load reads path, or returns the defaults when path is empty, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		var err error
		if c, err = LoadFromPath(path); err != nil {
			return nil, err
		}
	}
	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromPath reads a config file (YAML or JSON) and applies defaults.
// Format is detected by extension or, failing that, by content.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a config. ext is a format hint; empty means detect.
func Parse(data []byte, ext string) (*Config, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}
	var c Config
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	case ".yaml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	c.applyDefaults()
	return &c, nil
}

// ApplyEnv overrides fields from the environment. EVACSIM_BRIDGE is split on
// whitespace into the bridge argv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBridge); ok && strings.TrimSpace(v) != "" {
		c.Bridge.Command = strings.Fields(v)
	}
	if v, ok := lookup(EnvModelFile); ok && v != "" {
		c.Experiment.ModelFile = v
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Experiment.Workers < 0 {
		errs = append(errs, fmt.Errorf("experiment.workers must not be negative"))
	}
	if c.Experiment.ScenariosFile != "" && len(c.Experiment.Scenarios) > 0 {
		errs = append(errs, fmt.Errorf("experiment.scenarios and experiment.scenarios_file are exclusive"))
	}
	if len(c.Experiment.Scenarios) > 0 {
		if err := scenario.Validate(c.Experiment.Scenarios); err != nil {
			errs = append(errs, fmt.Errorf("experiment.scenarios: %w", err))
		}
	}
	if t := c.Analyser.TargetAccuracy; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("analyser.target_accuracy %v outside [0, 1]", t))
	}
	return errors.Join(errs...)
}

// ScenarioList returns the inline scenarios, the scenarios file, or the
// default catalogue, in that order of preference.
func (c *Config) ScenarioList() ([]scenario.Scenario, error) {
	switch {
	case len(c.Experiment.Scenarios) > 0:
		return c.Experiment.Scenarios, nil
	case c.Experiment.ScenariosFile != "":
		return scenario.LoadFile(c.Experiment.ScenariosFile)
	}
	return scenario.Defaults(), nil
}

// RunnerConfig returns the per-trial settings.
func (c *Config) RunnerConfig() experiment.RunnerConfig {
	return experiment.RunnerConfig{
		StepBudget:   c.Experiment.StepBudget,
		TrialTimeout: c.Experiment.TrialTimeout.Duration,
	}
}

// TrainConfig returns the analyser training settings.
func (c *Config) TrainConfig() analyser.TrainConfig {
	return analyser.TrainConfig{
		MaxEpochs:      c.Analyser.MaxEpochs,
		BatchSize:      c.Analyser.BatchSize,
		LearningRate:   c.Analyser.LearningRate,
		TargetAccuracy: c.Analyser.TargetAccuracy,
	}
}

// OpenStore opens the run store, or returns nil when none is configured.
func (c *Config) OpenStore() (store.Store, error) {
	if c.DBPath == "" {
		return nil, nil
	}
	s, err := store.Open(c.DBPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
