// Package east - EAST scene text detector.
package east

import (
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// InputName is the input node of the ONNX export of EAST.
	InputName = "input_images"
	// ScoresOutputName is the sigmoid score map node.
	ScoresOutputName = "feature_fusion/Conv_7/Sigmoid"
	// GeometryOutputName is the concatenated geometry node (4 distances + angle).
	GeometryOutputName = "feature_fusion/concat_3"
)

// EAST is the instance of the EAST model.
type EAST struct {
	options model.BaseModel
}

// NewModel creates a new EAST model.
//
// Missing node names fall back to the names of the reference TensorFlow graph.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - *EAST: The model.
//   - error: An error if the model path is empty or the node names are incomplete.
func NewModel(args model.NewModelArgs) (*EAST, error) {
	if args.Path == "" {
		return nil, errors.New("NewModel requires a model path")
	}

	inputs := args.Inputs
	if len(inputs) == 0 {
		inputs = []string{InputName}
	}
	outputs := args.Outputs
	if len(outputs) == 0 {
		outputs = []string{ScoresOutputName, GeometryOutputName}
	}
	if len(outputs) != 2 {
		return nil, errors.Errorf("EAST requires exactly 2 outputs (scores, geometry), got %d", len(outputs))
	}

	return &EAST{
		options: model.BaseModel{
			Name:    model.ModelNameEAST,
			Family:  model.ModelFamilyTF,
			Path:    args.Path,
			Inputs:  inputs,
			Outputs: outputs,
		},
	}, nil
}

// Options returns the options for the EAST model.
//
// Returns:
//   - The options for the EAST model.
func (m *EAST) Options() model.BaseModel {
	return m.options
}

// PostProcess turns the raw network output into detections in source image pixels.
func (m *EAST) PostProcess(
	scores, geometry tensor.Tensor,
	cfg model.Config,
	sourceWidth, sourceHeight int,
) ([]postprocess.Detection, error) {
	return Run(scores, geometry, cfg, sourceWidth, sourceHeight)
}
