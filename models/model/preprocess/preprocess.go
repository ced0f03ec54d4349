// Package preprocess - Builds network input blobs from decoded images.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-east/models/model"
)

// ImageFormat represents the format of an encoded image.
type ImageFormat string

const (
	// ImageFormatJPEG represents JPEG image format.
	ImageFormatJPEG ImageFormat = "jpeg"
	// ImageFormatPNG represents PNG image format.
	ImageFormatPNG ImageFormat = "png"
)

// Image is an encoded input image with metadata.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The encoded bytes of the image.
	Data []byte `json:"data" yaml:"data"`
}

// ColorMode defines the channel order written into the blob.
type ColorMode int

const (
	// ColorModeRGB writes red, green, blue planes.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR writes blue, green, red planes (OpenCV native order).
	ColorModeBGR
)

// ModelConfig defines preprocessing for a specific network.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// MeanValues are subtracted per channel, in the order of ColorMode.
	MeanValues [3]float32
	// Scale multiplies each value after mean subtraction.
	Scale float32
	// ColorMode defines the plane order.
	ColorMode ColorMode
	// Interpolation is the resampling kernel used for resizing.
	Interpolation resize.InterpolationFunction
}

// PreprocessingResult contains the blob and the geometry needed to map results back.
type PreprocessingResult struct {
	// Data is the float32 blob in NCHW order.
	Data []float32
	// OriginalWidth is the source image width before resizing.
	OriginalWidth int
	// OriginalHeight is the source image height before resizing.
	OriginalHeight int
	// ScaleX is InputWidth / OriginalWidth.
	ScaleX float64
	// ScaleY is InputHeight / OriginalHeight.
	ScaleY float64
	// Shape is [1, 3, H, W].
	Shape []int
}

// Preprocessor turns images into network blobs. It is safe for concurrent use.
type Preprocessor struct {
	config *ModelConfig
	logger *zap.Logger
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
//
// @example
//
//	preprocessor := NewPreprocessor(GetEASTConfig(576))
func NewPreprocessor(config *ModelConfig) *Preprocessor {
	if config.Scale == 0 {
		config.Scale = 1
	}

	return &Preprocessor{
		config: config,
		logger: zap.NewNop(),
	}
}

// SetLogger replaces the debug logger. A nil logger disables logging.
func (p *Preprocessor) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p.logger = logger
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() *ModelConfig {
	return p.config
}

// Preprocess decodes an encoded image and builds its blob.
//
// Arguments:
// - img: The encoded image.
//
// Returns:
// - PreprocessingResult containing the blob and source dimensions.
// - error if the image is empty or cannot be decoded.
func (p *Preprocessor) Preprocess(img *Image) (*PreprocessingResult, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	if len(img.Data) == 0 {
		return nil, errors.New("image data is empty")
	}

	decoded, err := decodeImage(img)
	if err != nil {
		return nil, errors.Wrap(err, "image decoding failed")
	}
	return p.PreprocessImage(decoded)
}

// PreprocessImage resizes a decoded image to the network input and writes the blob
// value (pixel - mean[c]) * scale for every plane. Grayscale and paletted inputs are
// expanded to three identical channels.
//
// Arguments:
// - img: The decoded image.
//
// Returns:
// - PreprocessingResult containing the blob and source dimensions.
// - error if the image is nil or has no pixels.
func (p *Preprocessor) PreprocessImage(img image.Image) (*PreprocessingResult, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}
	if p.config.InputWidth <= 0 || p.config.InputHeight <= 0 {
		return nil, errors.Wrapf(model.ErrInvalidConfiguration,
			"input size %dx%d", p.config.InputWidth, p.config.InputHeight)
	}

	resized := resize.Resize(uint(p.config.InputWidth), uint(p.config.InputHeight), img, p.config.Interpolation)
	data := p.toBlob(resized)

	p.logger.Debug("preprocessed image",
		zap.String("model", p.config.Name),
		zap.Int("source_width", bounds.Dx()),
		zap.Int("source_height", bounds.Dy()),
		zap.Int("input_width", p.config.InputWidth),
		zap.Int("input_height", p.config.InputHeight),
	)

	return &PreprocessingResult{
		Data:           data,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		ScaleX:         float64(p.config.InputWidth) / float64(bounds.Dx()),
		ScaleY:         float64(p.config.InputHeight) / float64(bounds.Dy()),
		Shape:          []int{1, 3, p.config.InputHeight, p.config.InputWidth},
	}, nil
}

// decodeImage decodes img.Data with the decoder for img.Format. An empty format falls
// back to the decoders registered with the image package.
func decodeImage(img *Image) (image.Image, error) {
	r := bytes.NewReader(img.Data)
	switch img.Format {
	case ImageFormatJPEG:
		return jpeg.Decode(r)
	case ImageFormatPNG:
		return png.Decode(r)
	case "":
		decoded, _, err := image.Decode(r)
		return decoded, err
	default:
		return nil, errors.Errorf("unsupported image format %q", img.Format)
	}
}

// toBlob writes the planes of img in CHW order.
func (p *Preprocessor) toBlob(img image.Image) []float32 {
	bounds := img.Bounds()
	width := p.config.InputWidth
	height := p.config.InputHeight
	plane := width * height
	data := make([]float32, 3*plane)

	mean := p.config.MeanValues
	scale := p.config.Scale
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			c0, c1, c2 := float32(r>>8), float32(g>>8), float32(b>>8)
			if p.config.ColorMode == ColorModeBGR {
				c0, c2 = c2, c0
			}
			i := y*width + x
			data[i] = (c0 - mean[0]) * scale
			data[plane+i] = (c1 - mean[1]) * scale
			data[2*plane+i] = (c2 - mean[2]) * scale
		}
	}
	return data
}

// GetEASTConfig returns the preprocessing used by EAST text detectors: a square RGB
// input, no letterboxing, ImageNet channel means subtracted, unit scale.
//
// Arguments:
// - inputSize: The square input side, a multiple of 32.
//
// Returns:
// - A configured ModelConfig for EAST.
//
// @example
// config := GetEASTConfig(576)
// preprocessor := NewPreprocessor(config)
func GetEASTConfig(inputSize int) *ModelConfig {
	return &ModelConfig{
		Name:          string(model.ModelNameEAST),
		InputWidth:    inputSize,
		InputHeight:   inputSize,
		MeanValues:    model.DefaultMean,
		Scale:         model.DefaultScale,
		ColorMode:     ColorModeRGB,
		Interpolation: resize.Bilinear,
	}
}

// ConfigFromModel derives the preprocessing from a detection configuration.
func ConfigFromModel(cfg model.Config) *ModelConfig {
	config := GetEASTConfig(cfg.InputSize)
	config.MeanValues = cfg.Mean
	config.Scale = cfg.Scale
	return config
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
// - images: Slice of images to preprocess.
// - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
// - Slice of preprocessing results, in input order.
// - error if any preprocessing fails.
//
// @example
// images := []*Image{img1, img2, img3}
// results, err := preprocessor.BatchPreprocess(images, 4)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func (p *Preprocessor) BatchPreprocess(images []*Image, maxConcurrency int) ([]*PreprocessingResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*PreprocessingResult, len(images))
	errs := make([]error, len(images))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range images {
		wg.Add(1)
		go func(idx int, image *Image) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Preprocess(image)
			if err != nil {
				errs[idx] = fmt.Errorf("failed to preprocess image %d: %w", idx, err)
			} else {
				results[idx] = result
			}
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
