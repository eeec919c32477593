package main

import (
	"fmt"

	"evacsim/internal/analyser"
	"evacsim/internal/controller"
)

// loadAnalyser reads a trained model and its encoder and checks that they
// agree on the feature width.
func loadAnalyser(modelPath, encoderPath string) (*controller.Controller, *analyser.Encoder, error) {
	m, err := analyser.LoadModel(modelPath)
	if err != nil {
		return nil, nil, err
	}
	enc, err := analyser.LoadEncoder(encoderPath)
	if err != nil {
		return nil, nil, err
	}
	if enc.Width() != m.NumFeatures {
		return nil, nil, fmt.Errorf("%w: encoder %s produces %d features, model %s expects %d",
			analyser.ErrFeatureWidth, encoderPath, enc.Width(), modelPath, m.NumFeatures)
	}
	return controller.New(m), enc, nil
}
