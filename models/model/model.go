// Package model - Definitions shared by text detection models: names, configuration and errors.
package model

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameEAST is the name of the EAST scene text detector.
	ModelNameEAST Name = "east"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyTF is the TensorFlow model family. EAST ships as a frozen TensorFlow graph.
	ModelFamilyTF Family = "tf"
)

const (
	// DefaultConfidenceThreshold is the minimum score a cell needs to produce a candidate.
	DefaultConfidenceThreshold float32 = 0.5
	// DefaultNMSThreshold is the rotated IoU above which a lower scoring box is suppressed.
	DefaultNMSThreshold float32 = 0.4
	// DefaultInputSize is the side of the square network input. Must be a multiple of 32.
	DefaultInputSize = 576
	// DefaultScale is the factor applied to mean-subtracted pixels.
	DefaultScale float32 = 1.0
	// InputSizeMultiple is the granularity the network input side must respect.
	InputSizeMultiple = 32
)

// DefaultMean is the per-channel RGB mean subtracted from input pixels.
var DefaultMean = [3]float32{123.68, 116.78, 103.94}

// Config holds the parameters of a single decode/suppress cycle.
//
// A Config is a plain value: it is passed per call and never mutated by the
// detection pipeline, so changing parameters between runs is just a matter of
// passing a different value.
type Config struct {
	// ConfidenceThreshold filters cells scoring below this value.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMSThreshold is the overlap threshold for rotated non-maximum suppression.
	NMSThreshold float32 `json:"nms_threshold"        yaml:"nms_threshold"`
	// InputSize is the side of the square network input in pixels.
	InputSize int `json:"input_size"           yaml:"input_size"`
	// Mean is subtracted per RGB channel before inference.
	Mean [3]float32 `json:"mean"                 yaml:"mean"`
	// Scale multiplies mean-subtracted pixels before inference.
	Scale float32 `json:"scale"                yaml:"scale"`
}

// DefaultConfig returns the reference EAST parameters.
//
// Returns:
//   - Config: confidence 0.5, NMS 0.4, 576x576 input, ImageNet RGB mean, scale 1.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMSThreshold:        DefaultNMSThreshold,
		InputSize:           DefaultInputSize,
		Mean:                DefaultMean,
		Scale:               DefaultScale,
	}
}

// Validate checks the configuration ranges.
//
// Returns:
//   - error: wraps ErrInvalidConfiguration when a threshold is outside [0, 1], the input size
//     is not a positive multiple of 32, or the scale is not positive. NaN values fail.
func (c Config) Validate() error {
	// Written as negated ranges so NaN is rejected.
	if !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1) {
		return errors.Wrapf(ErrInvalidConfiguration, "confidence threshold %v outside [0, 1]", c.ConfidenceThreshold)
	}
	if !(c.NMSThreshold >= 0 && c.NMSThreshold <= 1) {
		return errors.Wrapf(ErrInvalidConfiguration, "nms threshold %v outside [0, 1]", c.NMSThreshold)
	}
	if c.InputSize <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "input size must be positive, got %d", c.InputSize)
	}
	if c.InputSize%InputSizeMultiple != 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "input size %d is not a multiple of %d", c.InputSize, InputSizeMultiple)
	}
	if !(c.Scale > 0) {
		return errors.Wrapf(ErrInvalidConfiguration, "scale must be positive, got %v", c.Scale)
	}
	return nil
}

// Fingerprint returns a key identifying the parameters that shape the network
// input. Two configurations with the same fingerprint can share an inference engine;
// thresholds are post-processing only and are not part of the key.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("size=%d;mean=%g,%g,%g;scale=%g", c.InputSize, c.Mean[0], c.Mean[1], c.Mean[2], c.Scale)
}

// LoadConfig reads a YAML document over the default configuration.
//
// Fields missing from the document keep their default values.
//
// Arguments:
//   - path: The path to the YAML file.
//
// Returns:
//   - Config: The merged, validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML document over the default configuration and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name    Name     `json:"name"    yaml:"name"`
	Path    string   `json:"path"    yaml:"path"`
	Family  Family   `json:"family"  yaml:"family"`
	Inputs  []string `json:"inputs"  yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
}

// BaseModel is the base model for all models.
type BaseModel struct {
	Name    Name
	Family  Family
	Path    string
	Inputs  []string
	Outputs []string
}
