package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-east/models/model"
)

func uniformRGBA(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// assertPlane checks that every value of one CHW plane equals want.
func assertPlane(t *testing.T, data []float32, plane, size int, want float32) {
	t.Helper()
	n := size * size
	for i := plane * n; i < (plane+1)*n; i++ {
		if !assert.InDelta(t, want, data[i], 1e-3, "plane %d index %d", plane, i-plane*n) {
			return
		}
	}
}

// TestGetEASTConfig validates the EAST preset.
func TestGetEASTConfig(t *testing.T) {
	config := GetEASTConfig(320)

	assert.Equal(t, "east", config.Name)
	assert.Equal(t, 320, config.InputWidth)
	assert.Equal(t, 320, config.InputHeight)
	assert.Equal(t, [3]float32{123.68, 116.78, 103.94}, config.MeanValues)
	assert.Equal(t, float32(1), config.Scale)
	assert.Equal(t, ColorModeRGB, config.ColorMode)
}

// TestConfigFromModel ensures the detection configuration drives the blob parameters.
func TestConfigFromModel(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.InputSize = 640
	cfg.Mean = [3]float32{1, 2, 3}
	cfg.Scale = 0.5

	config := ConfigFromModel(cfg)

	assert.Equal(t, 640, config.InputWidth)
	assert.Equal(t, 640, config.InputHeight)
	assert.Equal(t, [3]float32{1, 2, 3}, config.MeanValues)
	assert.Equal(t, float32(0.5), config.Scale)
}

// TestPreprocessImageMeanSubtraction validates the blob layout and values for a
// uniform color image.
func TestPreprocessImageMeanSubtraction(t *testing.T) {
	src := uniformRGBA(64, 32, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	p := NewPreprocessor(GetEASTConfig(32))

	result, err := p.PreprocessImage(src)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 32, 32}, result.Shape)
	assert.Len(t, result.Data, 3*32*32)
	assert.Equal(t, 64, result.OriginalWidth)
	assert.Equal(t, 32, result.OriginalHeight)
	assert.InDelta(t, 0.5, result.ScaleX, 1e-9)
	assert.InDelta(t, 1.0, result.ScaleY, 1e-9)

	assertPlane(t, result.Data, 0, 32, 200-123.68)
	assertPlane(t, result.Data, 1, 32, 100-116.78)
	assertPlane(t, result.Data, 2, 32, 50-103.94)
}

// TestPreprocessImageScale ensures the scale factor is applied after mean subtraction.
func TestPreprocessImageScale(t *testing.T) {
	src := uniformRGBA(32, 32, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	config := GetEASTConfig(32)
	config.MeanValues = [3]float32{100, 100, 100}
	config.Scale = 0.5

	result, err := NewPreprocessor(config).PreprocessImage(src)
	require.NoError(t, err)

	assertPlane(t, result.Data, 0, 32, 50)
	assertPlane(t, result.Data, 1, 32, 0)
	assertPlane(t, result.Data, 2, 32, -25)
}

// TestPreprocessImageBGR validates the swapped plane order.
func TestPreprocessImageBGR(t *testing.T) {
	src := uniformRGBA(32, 32, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	config := GetEASTConfig(32)
	config.MeanValues = [3]float32{}
	config.ColorMode = ColorModeBGR

	result, err := NewPreprocessor(config).PreprocessImage(src)
	require.NoError(t, err)

	assertPlane(t, result.Data, 0, 32, 50)
	assertPlane(t, result.Data, 1, 32, 100)
	assertPlane(t, result.Data, 2, 32, 200)
}

// TestPreprocessImageGrayscale ensures single channel images are expanded to three
// identical planes.
func TestPreprocessImageGrayscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 48, 48))
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	config := GetEASTConfig(32)
	config.MeanValues = [3]float32{}

	result, err := NewPreprocessor(config).PreprocessImage(src)
	require.NoError(t, err)

	for c := 0; c < 3; c++ {
		assertPlane(t, result.Data, c, 32, 128)
	}
}

// TestPreprocessImageOffsetBounds ensures sub-images that do not start at the origin
// keep their true dimensions.
func TestPreprocessImageOffsetBounds(t *testing.T) {
	full := uniformRGBA(100, 100, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	sub := full.SubImage(image.Rect(20, 30, 84, 62))

	result, err := NewPreprocessor(GetEASTConfig(32)).PreprocessImage(sub)
	require.NoError(t, err)

	assert.Equal(t, 64, result.OriginalWidth)
	assert.Equal(t, 32, result.OriginalHeight)
}

// TestPreprocessImageInvalid covers rejected inputs.
func TestPreprocessImageInvalid(t *testing.T) {
	p := NewPreprocessor(GetEASTConfig(32))

	_, err := p.PreprocessImage(nil)
	assert.Error(t, err)

	_, err = p.PreprocessImage(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.Error(t, err)

	bad := NewPreprocessor(GetEASTConfig(0))
	_, err = bad.PreprocessImage(uniformRGBA(8, 8, color.RGBA{A: 255}))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

// TestPreprocessEncoded validates the decode path for PNG and JPEG inputs.
func TestPreprocessEncoded(t *testing.T) {
	src := uniformRGBA(40, 20, color.RGBA{R: 90, G: 90, B: 90, A: 255})

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, &jpeg.Options{Quality: 95}))

	tests := []struct {
		name string
		img  *Image
	}{
		{name: "png", img: &Image{Format: ImageFormatPNG, Data: encodePNG(t, src)}},
		{name: "jpeg", img: &Image{Format: ImageFormatJPEG, Data: jpg.Bytes()}},
	}

	p := NewPreprocessor(GetEASTConfig(32))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Preprocess(tt.img)
			require.NoError(t, err)
			assert.Equal(t, 40, result.OriginalWidth)
			assert.Equal(t, 20, result.OriginalHeight)
			assert.Len(t, result.Data, 3*32*32)
		})
	}
}

// TestPreprocessRejectsBadInput covers nil, empty and undecodable data.
func TestPreprocessRejectsBadInput(t *testing.T) {
	p := NewPreprocessor(GetEASTConfig(32))

	_, err := p.Preprocess(nil)
	assert.Error(t, err)

	_, err = p.Preprocess(&Image{Format: ImageFormatPNG})
	assert.Error(t, err)

	_, err = p.Preprocess(&Image{Format: ImageFormatPNG, Data: []byte("not an image")})
	assert.Error(t, err)
}

// TestBatchPreprocess validates ordering and error propagation of the batch helper.
func TestBatchPreprocess(t *testing.T) {
	p := NewPreprocessor(GetEASTConfig(32))

	widths := []int{16, 32, 48, 64}
	images := make([]*Image, len(widths))
	for i, w := range widths {
		images[i] = &Image{Format: ImageFormatPNG, Data: encodePNG(t, uniformRGBA(w, 16, color.RGBA{A: 255}))}
	}

	results, err := p.BatchPreprocess(images, 2)
	require.NoError(t, err)
	require.Len(t, results, len(widths))
	for i, w := range widths {
		assert.Equal(t, w, results[i].OriginalWidth)
	}

	images = append(images, &Image{Format: ImageFormatPNG})
	_, err = p.BatchPreprocess(images, 0)
	assert.Error(t, err)
}
