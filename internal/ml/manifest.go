package ml

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"trendcast/internal/common"
	"trendcast/internal/features"
)

// DecisionMode selects how a raw model output becomes a label.
type DecisionMode string

const (
	// DecisionThreshold labels raw >= threshold as positive.
	DecisionThreshold DecisionMode = "threshold"
	// DecisionClass expects the model to emit 0 or 1.
	DecisionClass DecisionMode = "class"
	// DecisionProbability expects a probability in [0,1] and reports confidence.
	DecisionProbability DecisionMode = "probability"
)

type Decision struct {
	Mode      DecisionMode `yaml:"mode" json:"mode"`
	Threshold float64      `yaml:"threshold" json:"threshold"`
}

// ModelSpec describes one model of the closed set served by a Registry.
type ModelSpec struct {
	Name        string        `yaml:"name" json:"name"`
	Version     string        `yaml:"version" json:"version"`
	Kind        Kind          `yaml:"kind" json:"kind"`
	Path        string        `yaml:"path" json:"path"`
	Symbol      string        `yaml:"symbol" json:"symbol"`
	Token       string        `yaml:"token" json:"token,omitempty"`
	InputLength int           `yaml:"inputLength" json:"inputLength"`
	Transform   features.Spec `yaml:"transform" json:"transform"`
	Decision    Decision      `yaml:"decision" json:"decision"`
}

// Manifest is the on-disk list of models, usually models/manifest.yaml.
type Manifest struct {
	Models []ModelSpec `yaml:"models"`

	dir string
}

// LoadManifest reads a YAML manifest. Artifact paths inside it are relative
// to the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Models) == 0 {
		return nil, fmt.Errorf("manifest %s declares no models", path)
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// Dir is the directory artifact paths are resolved against.
func (m *Manifest) Dir() string { return m.dir }

// validate checks a spec against the known kinds, transforms and decision
// modes and returns the feature vector length it implies.
func (s ModelSpec) validate() (int, error) {
	if s.Name == "" {
		return 0, fmt.Errorf("model name is required")
	}
	if !s.Kind.Known() {
		return 0, fmt.Errorf("model %s: unsupported kind %q", s.Name, s.Kind)
	}
	if s.Path == "" {
		return 0, fmt.Errorf("model %s: artifact path is required", s.Name)
	}
	if s.Symbol == "" {
		return 0, fmt.Errorf("model %s: market symbol is required", s.Name)
	}
	if s.InputLength <= 0 || s.InputLength > common.MaxSeriesLength {
		return 0, fmt.Errorf("model %s: input length must be between 1 and %d, got %d",
			s.Name, common.MaxSeriesLength, s.InputLength)
	}
	n, err := features.OutputLength(s.Transform, s.InputLength)
	if err != nil {
		return 0, fmt.Errorf("model %s: %w", s.Name, err)
	}
	if err := s.Decision.validate(); err != nil {
		return 0, fmt.Errorf("model %s: %w", s.Name, err)
	}
	return n, nil
}

func (d Decision) validate() error {
	if math.IsNaN(d.Threshold) || math.IsInf(d.Threshold, 0) {
		return fmt.Errorf("decision threshold must be finite")
	}
	switch d.Mode {
	case DecisionThreshold, DecisionClass:
		return nil
	case DecisionProbability:
		if d.Threshold < 0 || d.Threshold > 1 {
			return fmt.Errorf("probability threshold must be in [0,1], got %v", d.Threshold)
		}
		return nil
	default:
		return fmt.Errorf("unknown decision mode %q", d.Mode)
	}
}
