package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Kernel names as written by the model export.
const (
	KernelLinear  = "linear"
	KernelRBF     = "rbf"
	KernelPoly    = "poly"
	KernelSigmoid = "sigmoid"
)

var ErrInvalidArtifact = errors.New("invalid model artifact")

// Scaler is a fitted standardisation step applied before the SVM.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Artifact is the JSON export of a fitted binary support vector classifier.
// DualCoef and Intercept use the scikit-learn public sign convention, so a
// positive decision value selects Classes[1].
type Artifact struct {
	Version        string      `json:"version"`
	Kernel         string      `json:"kernel"`
	Gamma          float64     `json:"gamma"`
	Coef0          float64     `json:"coef0"`
	Degree         int         `json:"degree"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       []float64   `json:"dual_coef"`
	Coef           []float64   `json:"coef,omitempty"`
	Intercept      float64     `json:"intercept"`
	Classes        []int       `json:"classes"`
	FeatureNames   []string    `json:"feature_names,omitempty"`
	Scaler         *Scaler     `json:"scaler,omitempty"`
}

// SVM evaluates an Artifact. It is immutable after construction and safe
// for concurrent use.
type SVM struct {
	a Artifact
}

// LoadSVM reads and validates an artifact file.
func LoadSVM(path string) (*SVM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidArtifact, path, err)
	}
	return NewSVM(a)
}

// NewSVM validates the artifact's shape against the five-feature input.
func NewSVM(a Artifact) (*SVM, error) {
	if len(a.Classes) != 2 {
		return nil, fmt.Errorf("%w: expected 2 classes, got %d", ErrInvalidArtifact, len(a.Classes))
	}
	if len(a.FeatureNames) > 0 {
		if len(a.FeatureNames) != FeatureCount {
			return nil, fmt.Errorf("%w: expected %d feature names, got %d", ErrInvalidArtifact, FeatureCount, len(a.FeatureNames))
		}
		for i, name := range a.FeatureNames {
			if name != FeatureNames[i] {
				return nil, fmt.Errorf("%w: feature %d is %q, want %q", ErrInvalidArtifact, i, name, FeatureNames[i])
			}
		}
	}
	if a.Scaler != nil {
		if len(a.Scaler.Mean) != FeatureCount || len(a.Scaler.Scale) != FeatureCount {
			return nil, fmt.Errorf("%w: scaler must have %d means and scales", ErrInvalidArtifact, FeatureCount)
		}
		for i, s := range a.Scaler.Scale {
			if s == 0 {
				return nil, fmt.Errorf("%w: scaler scale for %s is zero", ErrInvalidArtifact, FeatureNames[i])
			}
		}
	}

	switch a.Kernel {
	case KernelLinear:
		if len(a.Coef) > 0 {
			if len(a.Coef) != FeatureCount {
				return nil, fmt.Errorf("%w: expected %d coefficients, got %d", ErrInvalidArtifact, FeatureCount, len(a.Coef))
			}
			return &SVM{a: a}, nil
		}
	case KernelRBF, KernelPoly, KernelSigmoid:
		if a.Gamma <= 0 {
			return nil, fmt.Errorf("%w: kernel %s needs a positive gamma", ErrInvalidArtifact, a.Kernel)
		}
		if a.Kernel == KernelPoly && a.Degree <= 0 {
			return nil, fmt.Errorf("%w: poly kernel needs a positive degree", ErrInvalidArtifact)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported kernel %q", ErrInvalidArtifact, a.Kernel)
	}

	if len(a.SupportVectors) == 0 {
		return nil, fmt.Errorf("%w: no support vectors", ErrInvalidArtifact)
	}
	if len(a.SupportVectors) != len(a.DualCoef) {
		return nil, fmt.Errorf("%w: %d support vectors but %d dual coefficients",
			ErrInvalidArtifact, len(a.SupportVectors), len(a.DualCoef))
	}
	for i, sv := range a.SupportVectors {
		if len(sv) != FeatureCount {
			return nil, fmt.Errorf("%w: support vector %d has %d features", ErrInvalidArtifact, i, len(sv))
		}
	}
	return &SVM{a: a}, nil
}

func (m *SVM) Version() string { return m.a.Version }

// Decision returns the signed distance of v from the separating surface.
func (m *SVM) Decision(v Vector) (float64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	x := m.scale(v)

	if m.a.Kernel == KernelLinear && len(m.a.Coef) > 0 {
		return dot(m.a.Coef, x) + m.a.Intercept, nil
	}

	sum := m.a.Intercept
	for i, sv := range m.a.SupportVectors {
		sum += m.a.DualCoef[i] * m.kernel(sv, x)
	}
	return sum, nil
}

// Predict implements Predictor.
func (m *SVM) Predict(_ context.Context, v Vector) (Label, error) {
	d, err := m.Decision(v)
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return Label(m.a.Classes[1]), nil
	}
	return Label(m.a.Classes[0]), nil
}

func (m *SVM) scale(v Vector) []float64 {
	x := make([]float64, len(v))
	copy(x, v)
	if s := m.a.Scaler; s != nil {
		for i := range x {
			x[i] = (x[i] - s.Mean[i]) / s.Scale[i]
		}
	}
	return x
}

func (m *SVM) kernel(a, b []float64) float64 {
	switch m.a.Kernel {
	case KernelRBF:
		var d2 float64
		for i := range a {
			d := a[i] - b[i]
			d2 += d * d
		}
		return math.Exp(-m.a.Gamma * d2)
	case KernelPoly:
		return math.Pow(m.a.Gamma*dot(a, b)+m.a.Coef0, float64(m.a.Degree))
	case KernelSigmoid:
		return math.Tanh(m.a.Gamma*dot(a, b) + m.a.Coef0)
	default:
		return dot(a, b)
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
