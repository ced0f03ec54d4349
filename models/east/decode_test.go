package east

import (
	"math"
	"testing"

	"github.com/nvr-ai/go-east/models/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// outputMaps is a writable pair of EAST output maps.
type outputMaps struct {
	height, width int
	scores        []float32
	geometry      []float32
}

func newOutputMaps(height, width int) *outputMaps {
	return &outputMaps{
		height:   height,
		width:    width,
		scores:   make([]float32, height*width),
		geometry: make([]float32, GeometryChannels*height*width),
	}
}

// set writes a cell: score, then distances to the top, right, bottom and left edges and
// the angle in radians.
func (m *outputMaps) set(y, x int, score, top, right, bottom, left, angle float32) {
	i := y*m.width + x
	plane := m.height * m.width
	m.scores[i] = score
	m.geometry[0*plane+i] = top
	m.geometry[1*plane+i] = right
	m.geometry[2*plane+i] = bottom
	m.geometry[3*plane+i] = left
	m.geometry[4*plane+i] = angle
}

func (m *outputMaps) tensors() (tensor.Tensor, tensor.Tensor) {
	scores := tensor.New(tensor.WithShape(1, 1, m.height, m.width), tensor.WithBacking(m.scores))
	geometry := tensor.New(tensor.WithShape(1, GeometryChannels, m.height, m.width), tensor.WithBacking(m.geometry))
	return scores, geometry
}

func TestDecode_NoQualifyingCells(t *testing.T) {
	maps := newOutputMaps(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			maps.set(y, x, 0.49, 10, 20, 10, 20, 0)
		}
	}
	scores, geometry := maps.tensors()

	candidates, err := Decode(scores, geometry, 0.5)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDecode_ZeroAngle(t *testing.T) {
	maps := newOutputMaps(4, 4)
	maps.set(0, 0, 0.9, 10, 20, 10, 20, 0)
	scores, geometry := maps.tensors()

	candidates, err := Decode(scores, geometry, 0.5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	box := candidates[0].Box
	assert.Equal(t, float32(0.9), candidates[0].Score)
	assert.InDelta(t, 40, box.Size.Width, 1e-5)
	assert.InDelta(t, 20, box.Size.Height, 1e-5)
	assert.InDelta(t, 0, box.Center.X, 1e-5)
	assert.InDelta(t, 0, box.Center.Y, 1e-5)
	assert.InDelta(t, 0, box.Angle, 1e-5)
}

func TestDecode_AsymmetricDistancesUseStride(t *testing.T) {
	maps := newOutputMaps(4, 4)
	// Cell (row 1, col 2) has its origin at input pixel (8, 4).
	maps.set(1, 2, 0.7, 5, 30, 15, 10, 0)
	scores, geometry := maps.tensors()

	candidates, err := Decode(scores, geometry, 0.5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	box := candidates[0].Box
	// Edges at y=-1 and y=19, x=-2 and x=38.
	assert.InDelta(t, 18, box.Center.X, 1e-5)
	assert.InDelta(t, 9, box.Center.Y, 1e-5)
	assert.InDelta(t, 40, box.Size.Width, 1e-5)
	assert.InDelta(t, 20, box.Size.Height, 1e-5)
}

func TestDecode_ThirtyDegrees(t *testing.T) {
	maps := newOutputMaps(4, 4)
	maps.set(2, 3, 0.8, 10, 20, 10, 20, float32(math.Pi/6))
	scores, geometry := maps.tensors()

	candidates, err := Decode(scores, geometry, 0.5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	box := candidates[0].Box
	// Clockwise radians in the map become counter-clockwise degrees.
	assert.InDelta(t, -30, box.Angle, 1e-4)
	// Symmetric distances keep the center on the cell origin (12, 8) for any angle.
	assert.InDelta(t, 12, box.Center.X, 1e-4)
	assert.InDelta(t, 8, box.Center.Y, 1e-4)
	assert.InDelta(t, 40, box.Size.Width, 1e-5)
	assert.InDelta(t, 20, box.Size.Height, 1e-5)

	// The reconstructed anchor corner, 12 + 20cos30 + 10sin30 and 8 - 20sin30 + 10cos30,
	// must be a vertex of the rectangle; a flipped sign would move it.
	anchorX := 12 + 20*math.Cos(math.Pi/6) + 10*math.Sin(math.Pi/6)
	anchorY := 8 - 20*math.Sin(math.Pi/6) + 10*math.Cos(math.Pi/6)
	found := false
	for _, p := range box.Points() {
		if math.Abs(float64(p.X)-anchorX) < 1e-3 && math.Abs(float64(p.Y)-anchorY) < 1e-3 {
			found = true
		}
	}
	assert.True(t, found, "anchor corner (%f, %f) not among %v", anchorX, anchorY, box.Points())
}

func TestDecode_ScanOrderAndThresholdInclusive(t *testing.T) {
	maps := newOutputMaps(3, 3)
	maps.set(2, 0, 0.9, 1, 1, 1, 1, 0)
	maps.set(0, 2, 0.5, 1, 1, 1, 1, 0) // Exactly at the threshold.
	maps.set(1, 1, 0.6, 1, 1, 1, 1, 0)
	scores, geometry := maps.tensors()

	candidates, err := Decode(scores, geometry, 0.5)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	// Row-major: (0,2), (1,1), (2,0).
	assert.Equal(t, float32(0.5), candidates[0].Score)
	assert.Equal(t, float32(0.6), candidates[1].Score)
	assert.Equal(t, float32(0.9), candidates[2].Score)
	assert.InDelta(t, 8, candidates[0].Box.Center.X, 1e-5)
	assert.InDelta(t, 0, candidates[0].Box.Center.Y, 1e-5)
	assert.InDelta(t, 0, candidates[2].Box.Center.X, 1e-5)
	assert.InDelta(t, 8, candidates[2].Box.Center.Y, 1e-5)
}

func TestDecode_ShapeMismatch(t *testing.T) {
	valid := newOutputMaps(4, 4)
	scores, geometry := valid.tensors()

	tests := []struct {
		name     string
		scores   tensor.Tensor
		geometry tensor.Tensor
	}{
		{
			name:     "scores rank 3",
			scores:   tensor.New(tensor.WithShape(1, 4, 4), tensor.WithBacking(make([]float32, 16))),
			geometry: geometry,
		},
		{
			name:     "scores two channels",
			scores:   tensor.New(tensor.WithShape(1, 2, 4, 4), tensor.WithBacking(make([]float32, 32))),
			geometry: geometry,
		},
		{
			name:     "batch of two",
			scores:   tensor.New(tensor.WithShape(2, 1, 4, 4), tensor.WithBacking(make([]float32, 32))),
			geometry: geometry,
		},
		{
			name:     "geometry four channels",
			scores:   scores,
			geometry: tensor.New(tensor.WithShape(1, 4, 4, 4), tensor.WithBacking(make([]float32, 64))),
		},
		{
			name:     "height differs",
			scores:   scores,
			geometry: tensor.New(tensor.WithShape(1, 5, 3, 4), tensor.WithBacking(make([]float32, 60))),
		},
		{
			name:     "width differs",
			scores:   tensor.New(tensor.WithShape(1, 1, 4, 5), tensor.WithBacking(make([]float32, 20))),
			geometry: geometry,
		},
		{
			name:     "float64 scores",
			scores:   tensor.New(tensor.WithShape(1, 1, 4, 4), tensor.WithBacking(make([]float64, 16))),
			geometry: geometry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, err := Decode(tt.scores, tt.geometry, 0.5)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrShapeMismatch), "got %v", err)
			assert.Nil(t, candidates)
		})
	}
}

func TestDecode_Monotonic(t *testing.T) {
	maps := newOutputMaps(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			score := float32((y*16+x)%17) / 17
			maps.set(y, x, score, 4, 6, 4, 6, float32(x-y)/20)
		}
	}
	scores, geometry := maps.tensors()

	previous := math.MaxInt
	for _, threshold := range []float32{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1} {
		candidates, err := Decode(scores, geometry, threshold)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(candidates), previous, "threshold %v", threshold)
		previous = len(candidates)
	}
}

func TestAngleDegrees(t *testing.T) {
	assert.Equal(t, float32(0), angleDegrees(0))
	assert.InDelta(t, -30, angleDegrees(float32(math.Pi/6)), 1e-4)
	assert.InDelta(t, 90, angleDegrees(float32(-math.Pi/2)), 1e-4)
}
