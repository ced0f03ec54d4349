package east

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-east/images"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// Stride is the ratio between input pixels and feature map cells.
	Stride = 4
	// GeometryChannels is the channel count of the geometry map: top, right, bottom, left, angle.
	GeometryChannels = 5
)

// angleDegrees converts a geometry map angle (radians, clockwise) into the rotated
// rectangle convention (degrees, counter-clockwise).
func angleDegrees(radians float32) float32 {
	return -radians * 180 / math32.Pi
}

// checkShapes validates the (1,1,H,W) scores and (1,5,H,W) geometry layout.
//
// Returns:
//   - height, width: The feature map dimensions.
//   - error: wraps model.ErrShapeMismatch.
func checkShapes(scores, geometry tensor.Tensor) (int, int, error) {
	ss := scores.Shape()
	gs := geometry.Shape()

	if len(ss) != 4 || ss[0] != 1 || ss[1] != 1 {
		return 0, 0, errors.Wrapf(model.ErrShapeMismatch, "scores must be (1,1,H,W), got %v", ss)
	}
	if len(gs) != 4 || gs[0] != 1 || gs[1] != GeometryChannels {
		return 0, 0, errors.Wrapf(model.ErrShapeMismatch, "geometry must be (1,5,H,W), got %v", gs)
	}
	if ss[2] != gs[2] || ss[3] != gs[3] {
		return 0, 0, errors.Wrapf(model.ErrShapeMismatch, "scores %v and geometry %v disagree on H,W", ss, gs)
	}
	return ss[2], ss[3], nil
}

// float32Data returns the contiguous row-major backing of t.
func float32Data(t tensor.Tensor, name string) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(model.ErrShapeMismatch, "%s must be float32, got %v", name, t.Dtype())
	}
	if len(data) != t.Shape().TotalSize() {
		return nil, errors.Wrapf(model.ErrShapeMismatch,
			"%s holds %d values, shape %v needs %d", name, len(data), t.Shape(), t.Shape().TotalSize())
	}
	return data, nil
}

// Decode reconstructs one oriented rectangle per score map cell at or above the
// confidence threshold.
//
// For each cell the geometry map holds the distances from the cell's input pixel
// origin (x*4, y*4) to the top, right, bottom and left edges of the box, and the
// box rotation in radians. The bottom-right corner is rebuilt in the rotated frame
// and the center is the midpoint of the two corners adjacent to it.
//
// Arguments:
//   - scores: Score map of shape (1,1,H,W).
//   - geometry: Geometry map of shape (1,5,H,W).
//   - confidenceThreshold: Cells scoring below this value are skipped.
//
// Returns:
//   - []postprocess.Candidate: Candidates in row-major scan order, empty when no cell qualifies.
//   - error: wraps model.ErrShapeMismatch when the tensors do not have the expected layout.
func Decode(scores, geometry tensor.Tensor, confidenceThreshold float32) ([]postprocess.Candidate, error) {
	height, width, err := checkShapes(scores, geometry)
	if err != nil {
		return nil, err
	}
	scoreData, err := float32Data(scores, "scores")
	if err != nil {
		return nil, err
	}
	geoData, err := float32Data(geometry, "geometry")
	if err != nil {
		return nil, err
	}

	plane := height * width
	top := geoData[0*plane : 1*plane]
	right := geoData[1*plane : 2*plane]
	bottom := geoData[2*plane : 3*plane]
	left := geoData[3*plane : 4*plane]
	angles := geoData[4*plane : 5*plane]

	candidates := make([]postprocess.Candidate, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			score := scoreData[i]
			if score < confidenceThreshold {
				continue
			}

			offsetX := float32(x) * Stride
			offsetY := float32(y) * Stride
			angle := angles[i]
			cosA := math32.Cos(angle)
			sinA := math32.Sin(angle)
			h := top[i] + bottom[i]
			w := right[i] + left[i]

			anchor := images.Point2f{
				X: offsetX + cosA*right[i] + sinA*bottom[i],
				Y: offsetY - sinA*right[i] + cosA*bottom[i],
			}
			p1 := anchor.Add(images.Point2f{X: -sinA * h, Y: -cosA * h})
			p3 := anchor.Add(images.Point2f{X: -cosA * w, Y: sinA * w})

			candidates = append(candidates, postprocess.Candidate{
				Box: images.RotatedRect{
					Center: p1.Midpoint(p3),
					Size:   images.Size2f{Width: w, Height: h},
					Angle:  angleDegrees(angle),
				},
				Score: score,
			})
		}
	}

	return candidates, nil
}
