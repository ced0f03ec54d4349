// Package providers - Session tuning for ONNX Runtime.
package providers

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains the ONNX Runtime session settings exposed by the
// onnxruntime_go bindings.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization.
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level" yaml:"graph_optimization_level"`

	// ExecutionMode controls sequential vs parallel execution.
	ExecutionMode ort.ExecutionMode `json:"execution_mode"           yaml:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets the runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads"     yaml:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops. 0 lets the runtime decide.
	InterOpNumThreads int `json:"inter_op_num_threads"     yaml:"inter_op_num_threads"`
}

// DefaultOptimizationConfig returns a production-ready optimization configuration.
//
// EAST is a single fully convolutional graph, so extended graph rewrites and
// intra-op threading matter far more than inter-op parallelism.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
		ExecutionMode:          ort.ExecutionModeSequential,
		IntraOpNumThreads:      max(1, runtime.NumCPU()/2),
		InterOpNumThreads:      1,
	}
}

// LowLatencyConfig returns a configuration with every graph optimization enabled and
// a single-threaded, predictable scheduler.
func LowLatencyConfig() OptimizationConfig {
	config := DefaultOptimizationConfig()
	config.IntraOpNumThreads = 1
	return config
}

// NewSessionOptions builds session options from the configuration and registers the
// execution provider on them.
//
// Arguments:
//   - config: Optimization configuration to apply.
//   - provider: The execution provider. A nil provider leaves ONNX Runtime on the CPU.
//
// Returns:
//   - *ort.SessionOptions: Configured session options, owned by the caller.
//   - error: Configuration error if any.
//
// @example
// options, err := NewSessionOptions(DefaultOptimizationConfig(), NewCPUProvider(CPUOptions{}))
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer options.Destroy()
func NewSessionOptions(config OptimizationConfig, provider ExecutionProvider) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	if err := applyOptimization(options, config); err != nil {
		options.Destroy()
		return nil, err
	}

	if provider != nil {
		if err := provider.Apply(options); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "failed to configure %s execution provider", provider.Backend())
		}
	}

	return options, nil
}

func applyOptimization(options *ort.SessionOptions, config OptimizationConfig) error {
	if err := options.SetGraphOptimizationLevel(config.GraphOptimizationLevel); err != nil {
		return errors.Wrap(err, "failed to set graph optimization level")
	}
	if err := options.SetExecutionMode(config.ExecutionMode); err != nil {
		return errors.Wrap(err, "failed to set execution mode")
	}
	if err := options.SetIntraOpNumThreads(config.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "failed to set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpNumThreads); err != nil {
		return errors.Wrap(err, "failed to set inter-op threads")
	}
	return nil
}
