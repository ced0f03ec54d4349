// Package inference - Forward pass engines for EAST.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-east/inference/opencv"
	"github.com/nvr-ai/go-east/inference/providers"
	"github.com/nvr-ai/go-east/models"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/model/preprocess"
)

// ForwardPass runs the network on a preprocessed blob and returns the raw score and
// geometry maps.
type ForwardPass interface {
	// Forward returns the (1, 1, H, W) score map and (1, 5, H, W) geometry map.
	Forward(ctx context.Context, blob *preprocess.PreprocessingResult) (scores, geometry tensor.Tensor, err error)
	// Close releases the engine.
	Close() error
}

var (
	_ ForwardPass = (*ORTSession)(nil)
	_ ForwardPass = (*opencv.Net)(nil)
)

// EngineArgs selects and configures a forward pass.
type EngineArgs struct {
	// Engine selects the runtime.
	Engine EngineType `json:"engine"     yaml:"engine"`
	// Model locates the weights and names the graph nodes.
	Model model.NewModelArgs `json:"model"      yaml:"model"`
	// InputSize is the side of the square network input.
	InputSize int `json:"input_size" yaml:"input_size"`
	// Provider is the ONNX Runtime execution provider. Nil runs on the CPU.
	Provider providers.ExecutionProvider `json:"-"          yaml:"-"`
	// Optimization tunes the ONNX Runtime session.
	Optimization providers.OptimizationConfig `json:"-"          yaml:"-"`
	// NHWC marks channels-last ONNX exports.
	NHWC bool `json:"nhwc"       yaml:"nhwc"`
	// UseCUDA selects the CUDA target of the OpenCV engine.
	UseCUDA bool `json:"use_cuda"   yaml:"use_cuda"`
}

// NewForwardPass resolves the model and opens the requested engine.
//
// Arguments:
//   - args: The engine, model and input size.
//
// Returns:
//   - ForwardPass: The engine.
//   - models.Model: The resolved model, used to post-process the engine output.
//   - error: An error if the model or engine cannot be created.
func NewForwardPass(args EngineArgs) (ForwardPass, models.Model, error) {
	m, err := models.NewModel(args.Model)
	if err != nil {
		return nil, nil, err
	}
	opts := m.Options()
	if args.Optimization == (providers.OptimizationConfig{}) {
		args.Optimization = providers.DefaultOptimizationConfig()
	}

	switch args.Engine {
	case EngineONNX, "":
		session, err := NewORTSession(args.Provider, NewSessionArgs{
			ModelPath:    opts.Path,
			InputName:    opts.Inputs[0],
			ScoresName:   opts.Outputs[0],
			GeometryName: opts.Outputs[1],
			InputSize:    args.InputSize,
			NHWC:         args.NHWC,
			Optimization: args.Optimization,
		})
		if err != nil {
			return nil, nil, err
		}
		return session, m, nil
	case EngineOpenCV:
		net, err := opencv.NewNet(opencv.Args{
			ModelPath:    opts.Path,
			ScoresName:   opts.Outputs[0],
			GeometryName: opts.Outputs[1],
			InputSize:    args.InputSize,
			UseCUDA:      args.UseCUDA,
		})
		if err != nil {
			return nil, nil, err
		}
		return net, m, nil
	default:
		return nil, nil, errors.Errorf("unsupported engine: %s", args.Engine)
	}
}
