// Package classifier defines the narrow inference capability used by the ABG
// workflow and two implementations of it: a support vector machine loaded
// from an exported artifact, and a client for a remote inference endpoint.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// FeatureNames is the fixed order of the model's input vector.
var FeatureNames = []string{"pH", "pCO2", "pO2", "HCO3", "SaO2"}

// FeatureCount is the length every input vector must have.
const FeatureCount = 5

var (
	ErrShape     = errors.New("input vector has wrong shape")
	ErrNotFinite = errors.New("input vector contains a non-finite value")
)

// Vector is one input row in FeatureNames order.
type Vector []float64

// Label is the integer class returned by a model. Zero means Normal.
type Label int

// Validate checks the vector can be fed to a five-feature model.
func (v Vector) Validate() error {
	if len(v) != FeatureCount {
		return fmt.Errorf("%w: got %d features, want %d", ErrShape, len(v), FeatureCount)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNotFinite, FeatureNames[i], x)
		}
	}
	return nil
}

// Predictor returns one label for one input vector.
type Predictor interface {
	Predict(ctx context.Context, v Vector) (Label, error)
}

// PredictorFunc is a function adapter for Predictor.
type PredictorFunc func(ctx context.Context, v Vector) (Label, error)

func (f PredictorFunc) Predict(ctx context.Context, v Vector) (Label, error) {
	return f(ctx, v)
}

// Versioned is implemented by predictors that know which artifact they serve.
type Versioned interface {
	Version() string
}

// VersionOf returns the predictor's artifact version, or "unknown".
func VersionOf(p Predictor) string {
	if v, ok := p.(Versioned); ok && v.Version() != "" {
		return v.Version()
	}
	return "unknown"
}
