// Package east - postprocess EAST model outputs.
package east

import (
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// PostProcess suppresses overlapping candidates and maps the survivors to source
// image pixels.
//
// The network input is square while the source image generally is not, so the x and
// y axes are scaled independently; the aspect ratio of a box is not preserved.
//
// Arguments:
//   - candidates: Decoded candidates in scan order.
//   - cfg: Supplies the score cutoff, the overlap threshold and the network input size.
//   - sourceWidth, sourceHeight: The dimensions of the source image.
//
// Returns:
//   - []postprocess.Detection: Detections in descending confidence order (stable).
//   - error: wraps model.ErrInvalidConfiguration when the input size is not positive.
func PostProcess(
	candidates []postprocess.Candidate,
	cfg model.Config,
	sourceWidth, sourceHeight int,
) ([]postprocess.Detection, error) {
	if cfg.InputSize <= 0 {
		return nil, errors.Wrapf(model.ErrInvalidConfiguration, "input size must be positive, got %d", cfg.InputSize)
	}

	kept := postprocess.ApplyRotatedNMS(candidates, &postprocess.NMSConfig{
		ScoreThreshold: cfg.ConfidenceThreshold,
		IoUThreshold:   cfg.NMSThreshold,
	})

	xFactor := float32(sourceWidth) / float32(cfg.InputSize)
	yFactor := float32(sourceHeight) / float32(cfg.InputSize)

	detections := make([]postprocess.Detection, 0, len(kept))
	for _, idx := range kept {
		detections = append(detections, postprocess.Detection{
			Box:   candidates[idx].Box.Scale(xFactor, yFactor),
			Score: candidates[idx].Score,
		})
	}
	return detections, nil
}

// Run validates cfg, decodes the raw tensors and post-processes the candidates.
//
// Returns:
//   - []postprocess.Detection: The detections in source image pixels, possibly empty.
//   - error: wraps model.ErrInvalidConfiguration or model.ErrShapeMismatch. No output is
//     produced on error.
func Run(
	scores, geometry tensor.Tensor,
	cfg model.Config,
	sourceWidth, sourceHeight int,
) ([]postprocess.Detection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	candidates, err := Decode(scores, geometry, cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	return PostProcess(candidates, cfg, sourceWidth, sourceHeight)
}
