// Package postprocess - Postprocessing utilities for text detection models.
package postprocess

import "github.com/nvr-ai/go-east/images"

// Candidate is an oriented box decoded from a single score map cell, before suppression.
type Candidate struct {
	// The oriented box in network input pixels.
	Box images.RotatedRect
	// The score of the originating cell.
	Score float32
}

// Detection is a box that survived suppression, in source image pixels.
type Detection struct {
	// The oriented box in source image pixels.
	Box images.RotatedRect `json:"box"   yaml:"box"`
	// The confidence of the detection.
	Score float32 `json:"score" yaml:"score"`
}
