// Package detectors - Text detection on images.
package detectors

import (
	"go.uber.org/zap"

	"github.com/nvr-ai/go-east/inference"
	"github.com/nvr-ai/go-east/inference/providers"
	"github.com/nvr-ai/go-east/models/model"
)

// Config describes the engine behind a detector.
type Config struct {
	// Engine selects the runtime.
	Engine inference.EngineType `json:"engine"     yaml:"engine"`
	// ModelPath locates the weights.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// Provider is the ONNX Runtime execution provider backend.
	Provider providers.ProviderBackend `json:"provider"   yaml:"provider"`
	// NHWC marks channels-last ONNX exports.
	NHWC bool `json:"nhwc"       yaml:"nhwc"`
	// UseCUDA selects the CUDA target of the OpenCV engine.
	UseCUDA bool `json:"use_cuda"   yaml:"use_cuda"`
}

// DefaultConfig returns an ONNX Runtime engine on the CPU provider.
//
// Returns:
//   - Config: The default engine configuration, without a model path.
func DefaultConfig() Config {
	return Config{
		Engine:   inference.EngineONNX,
		Provider: providers.CPUProviderBackend,
	}
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the structured logger of a detector.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// EngineFactory opens an engine for a detection configuration. Only the fields that
// shape the network input (see model.Config.Fingerprint) may influence the engine.
type EngineFactory func(cfg model.Config) (*Detector, error)

// NewEngineFactory returns a factory that opens engines described by c.
//
// Arguments:
//   - c: The engine configuration.
//   - opts: Options applied to every detector created by the factory.
//
// Returns:
//   - EngineFactory: The factory.
func NewEngineFactory(c Config, opts ...Option) EngineFactory {
	return func(cfg model.Config) (*Detector, error) {
		provider, err := providers.NewProviderForBackend(c.Provider)
		if err != nil {
			return nil, err
		}
		forward, m, err := inference.NewForwardPass(inference.EngineArgs{
			Engine:    c.Engine,
			Model:     model.NewModelArgs{Name: model.ModelNameEAST, Path: c.ModelPath},
			InputSize: cfg.InputSize,
			Provider:  provider,
			NHWC:      c.NHWC,
			UseCUDA:   c.UseCUDA,
		})
		if err != nil {
			return nil, err
		}
		d, err := NewDetector(m, forward, cfg, opts...)
		if err != nil {
			forward.Close()
			return nil, err
		}
		return d, nil
	}
}
