package detectors

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-east/inference"
	"github.com/nvr-ai/go-east/models"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/model/preprocess"
	"github.com/nvr-ai/go-east/models/postprocess"
)

// Detector finds text in images: preprocess, forward pass, decode, suppress and map
// back to source pixels. A Detector is safe for concurrent use as long as its
// forward pass is.
type Detector struct {
	model        models.Model
	forward      inference.ForwardPass
	preprocessor *preprocess.Preprocessor
	config       model.Config
	logger       *zap.Logger
}

// NewDetector creates a new detector around an open engine.
//
// Arguments:
//   - m: The model that post-processes the engine output.
//   - forward: The engine. The detector takes ownership and closes it in Close.
//   - cfg: The detection parameters. The input size must match the engine.
//   - opts: Optional settings such as the logger.
//
// Returns:
//   - *Detector: The detector.
//   - error: ErrInvalidConfiguration when cfg is invalid.
func NewDetector(m models.Model, forward inference.ForwardPass, cfg model.Config, opts ...Option) (*Detector, error) {
	if m == nil || forward == nil {
		return nil, errors.New("NewDetector requires a model and a forward pass")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		model:        m,
		forward:      forward,
		preprocessor: preprocess.NewPreprocessor(preprocess.ConfigFromModel(cfg)),
		config:       cfg,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.preprocessor.SetLogger(d.logger)
	return d, nil
}

// Config returns the detection parameters the detector was created with.
func (d *Detector) Config() model.Config {
	return d.config
}

// Detect runs text detection with the detector's own parameters.
//
// Arguments:
//   - ctx: Cancels the call before the forward pass starts.
//   - img: The source image.
//
// Returns:
//   - []postprocess.Measure: One measure per detected text region, in source pixels.
//   - error: The first failing stage, wrapped with context.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]postprocess.Measure, error) {
	return d.DetectWithConfig(ctx, img, d.config)
}

// DetectWithConfig runs text detection with per-call thresholds.
//
// The confidence and NMS thresholds may differ from the detector's configuration;
// the fields that shape the network input may not, since the engine was built for
// them. Use a Cache to obtain a detector for a different input size.
func (d *Detector) DetectWithConfig(ctx context.Context, img image.Image, cfg model.Config) ([]postprocess.Measure, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Fingerprint() != d.config.Fingerprint() {
		return nil, errors.Wrapf(model.ErrInvalidConfiguration,
			"engine built for %q, called with %q", d.config.Fingerprint(), cfg.Fingerprint())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	blob, err := d.preprocessor.PreprocessImage(img)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess")
	}
	preprocessed := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores, geometry, err := d.forward.Forward(ctx, blob)
	if err != nil {
		return nil, errors.Wrap(err, "forward pass")
	}
	forwarded := time.Now()

	detections, err := d.model.PostProcess(scores, geometry, cfg, blob.OriginalWidth, blob.OriginalHeight)
	if err != nil {
		return nil, errors.Wrap(err, "post-process")
	}
	measures := postprocess.Measures(detections)

	d.logger.Debug("detected text",
		zap.Int("width", blob.OriginalWidth),
		zap.Int("height", blob.OriginalHeight),
		zap.Int("detections", len(measures)),
		zap.Duration("preprocess", preprocessed.Sub(start)),
		zap.Duration("forward", forwarded.Sub(preprocessed)),
		zap.Duration("postprocess", time.Since(forwarded)),
	)
	return measures, nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.forward.Close()
}
