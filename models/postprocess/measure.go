package postprocess

import "github.com/nvr-ai/go-east/images"

// TextLabel is the label attached to every measure produced by the text detector.
const TextLabel = "Text"

// Measure is the per-detection record handed to rendering and measurement consumers.
type Measure struct {
	// ID is the emission index of the detection, starting at 0.
	ID int `json:"id"`
	// Label groups measures by object kind.
	Label string `json:"label"`
	// Polygon holds the four corners of the oriented box.
	Polygon [4]images.Point2f `json:"polygon"`
	// Confidence is the detection score.
	Confidence float32 `json:"confidence"`
	// OrientedBox is (centerX, centerY, width, height, angleDegrees).
	OrientedBox [5]float32 `json:"oriented_box"`
}

// Measures converts detections into consumer records keyed by emission order.
//
// Arguments:
//   - detections: Detections in emission order.
//
// Returns:
//   - []Measure: One measure per detection with IDs 0..n-1.
func Measures(detections []Detection) []Measure {
	out := make([]Measure, len(detections))
	for i, d := range detections {
		out[i] = Measure{
			ID:         i,
			Label:      TextLabel,
			Polygon:    d.Box.Points(),
			Confidence: d.Score,
			OrientedBox: [5]float32{
				d.Box.Center.X,
				d.Box.Center.Y,
				d.Box.Size.Width,
				d.Box.Size.Height,
				d.Box.Angle,
			},
		}
	}
	return out
}
