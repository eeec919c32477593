// Package analyser is the type analyser: a logistic-regression classifier
// estimating the probability that a bystander shares the fallen person's
// identity and offers help, plus the one-hot encoder and training loop
// that produce it.
package analyser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
)

// Default artefact locations.
const (
	DefaultModelFile   = "model/trained_model.json"
	DefaultEncoderFile = "model/encoder.json"
)

// ErrFeatureWidth is returned when a feature vector does not match the
// model's input width.
var ErrFeatureWidth = errors.New("feature vector width mismatch")

// Model is a trained logistic-regression classifier.
type Model struct {
	NumFeatures int       `json:"num_features"`
	Weights     []float64 `json:"weights"`
	Bias        float64   `json:"bias"`
}

// NewModel returns an untrained model of the given width with zero weights.
func NewModel(numFeatures int) *Model {
	return &Model{NumFeatures: numFeatures, Weights: make([]float64, numFeatures)}
}

// ObtainProbabilities returns the probability of the positive class.
func (m *Model) ObtainProbabilities(features []float64) (float64, error) {
	if len(features) != m.NumFeatures {
		return 0, fmt.Errorf("%w: got %d, model expects %d", ErrFeatureWidth, len(features), m.NumFeatures)
	}
	return sigmoid(floats.Dot(m.Weights, features) + m.Bias), nil
}

func (m *Model) validate() error {
	if m.NumFeatures <= 0 {
		return fmt.Errorf("model has no features")
	}
	if len(m.Weights) != m.NumFeatures {
		return fmt.Errorf("model has %d weights for %d features", len(m.Weights), m.NumFeatures)
	}
	if floats.HasNaN(m.Weights) || math.IsNaN(m.Bias) {
		return fmt.Errorf("model parameters contain NaN")
	}
	return nil
}

func (m *Model) clone() *Model {
	return &Model{NumFeatures: m.NumFeatures, Weights: append([]float64(nil), m.Weights...), Bias: m.Bias}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// LoadModel reads a model file written by Save.
func LoadModel(path string) (*Model, error) {
	var m Model
	if err := readJSON(path, &m); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the model as JSON, creating parent directories.
func (m *Model) Save(path string) error {
	if err := m.validate(); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return writeJSON(path, m)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
