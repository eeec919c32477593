// Package controller holds the robot's decision controller.
package controller

import "fmt"

// TypeAnalyser estimates, from an encoded sensor observation, the probability
// that a bystander shares the fallen passenger's identity.
type TypeAnalyser interface {
	ObtainProbabilities(features []float64) (float64, error)
}

// Controller consults the type analyser at each decision point.
type Controller struct {
	analyser TypeAnalyser
}

// New returns a controller backed by a.
func New(a TypeAnalyser) *Controller {
	return &Controller{analyser: a}
}

// SharedIdentityProbability forwards obs to the analyser and returns its
// output unchanged. Analyser errors are returned as they are.
func (c *Controller) SharedIdentityProbability(obs []float64) (float64, error) {
	if c.analyser == nil {
		return 0, fmt.Errorf("controller has no type analyser")
	}
	return c.analyser.ObtainProbabilities(obs)
}
