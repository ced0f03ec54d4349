// Package models - registry for models.
package models

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-east/models/east"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/postprocess"
)

// Model is a text detection model: it knows where its weights live, which graph
// nodes it reads and writes, and how to turn raw network output into detections.
type Model interface {
	// Options returns the resolved model description.
	Options() model.BaseModel
	// PostProcess maps the raw score and geometry tensors to detections in source pixels.
	PostProcess(scores, geometry tensor.Tensor, cfg model.Config, sourceWidth, sourceHeight int) ([]postprocess.Detection, error)
}

var _ Model = (*east.EAST)(nil)

// NewModel creates a new detection model instance based on the specified model name.
//
// An empty name selects EAST, the only text detector currently registered.
//
// Arguments:
//   - args: Configuration parameters specifying the model type and location.
//
// Returns:
//   - Model: A configured model instance.
//   - error: An error if model creation fails or the model name is unsupported.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name: model.ModelNameEAST,
//	    Path: "/models/frozen_east_text_detection.pb",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(args model.NewModelArgs) (Model, error) {
	switch args.Name {
	case model.ModelNameEAST, "":
		m, err := east.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}
