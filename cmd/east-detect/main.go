// Command east-detect finds text regions in images with an EAST model.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nvr-ai/go-east/inference"
	"github.com/nvr-ai/go-east/inference/detectors"
	"github.com/nvr-ai/go-east/inference/providers"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/postprocess"
	"github.com/nvr-ai/go-east/profiler"
	"github.com/nvr-ai/go-east/util"
)

// result is the JSON record printed for each image.
type result struct {
	Path     string                `json:"path"`
	Width    int                   `json:"width"`
	Height   int                   `json:"height"`
	Measures []postprocess.Measure `json:"measures"`
}

// options holds the parsed command line.
type options struct {
	modelPath  string
	configPath string
	imagePath  string
	dir        string
	engine     string
	provider   string
	confidence float64
	nms        float64
	size       int
	outDir     string
	jsonOut    bool
	nhwc       bool
	debug      bool
	profile    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.modelPath, "model", "frozen_east_text_detection.pb", "Path to the EAST model (.pb for opencv, .onnx for onnx)")
	flag.StringVar(&opts.configPath, "config", "", "YAML file with detection parameters")
	flag.StringVar(&opts.imagePath, "image", "", "Path to a single image")
	flag.StringVar(&opts.dir, "dir", "", "Directory of images to process")
	flag.StringVar(&opts.engine, "backend", string(inference.EngineOpenCV), "Inference engine (onnx, opencv)")
	flag.StringVar(&opts.provider, "provider", string(providers.CPUProviderBackend), "ONNX Runtime execution provider (cpu, cuda, coreml, openvino)")
	flag.Float64Var(&opts.confidence, "confidence", -1, "Override the confidence threshold")
	flag.Float64Var(&opts.nms, "nms", -1, "Override the NMS threshold")
	flag.IntVar(&opts.size, "size", 0, "Override the network input size (multiple of 32)")
	flag.StringVar(&opts.outDir, "out", "", "Directory for annotated images")
	flag.BoolVar(&opts.jsonOut, "json", false, "Print measures as JSON lines")
	flag.BoolVar(&opts.nhwc, "nhwc", false, "The ONNX export uses channels-last tensors")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.profile, "profile", false, "Log stage timings and memory usage")
	flag.Parse()

	logger, err := newLogger(opts.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Error("east-detect failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// detectionConfig merges the config file and the flag overrides.
func detectionConfig(opts options) (model.Config, error) {
	cfg := model.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := model.LoadConfig(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if opts.confidence >= 0 {
		cfg.ConfidenceThreshold = float32(opts.confidence)
	}
	if opts.nms >= 0 {
		cfg.NMSThreshold = float32(opts.nms)
	}
	if opts.size > 0 {
		cfg.InputSize = opts.size
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	if (opts.imagePath == "") == (opts.dir == "") {
		return errors.New("exactly one of -image or -dir is required")
	}

	cfg, err := detectionConfig(opts)
	if err != nil {
		return err
	}

	engine := detectors.DefaultConfig()
	engine.Engine = inference.EngineType(opts.engine)
	engine.ModelPath = opts.modelPath
	engine.Provider = providers.ProviderBackend(opts.provider)
	engine.NHWC = opts.nhwc
	engine.UseCUDA = engine.Provider == providers.CUDAProviderBackend

	cache := detectors.NewCache(detectors.NewEngineFactory(engine, detectors.WithLogger(logger)), logger)
	defer cache.Close()

	detector, err := cache.Get(cfg)
	if err != nil {
		return err
	}

	paths, err := inputPaths(opts)
	if err != nil {
		return err
	}
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", opts.outDir)
		}
	}

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: logger})
	if opts.profile {
		prof.Start(ctx)
		defer prof.Stop()
	}

	enc := json.NewEncoder(os.Stdout)
	for _, path := range paths {
		done := prof.StartOperation("decode")
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		done()
		if err != nil {
			logger.Warn("skipping unreadable image", zap.String("path", path), zap.Error(err))
			continue
		}

		done = prof.StartOperation("detect")
		measures, err := detector.Detect(ctx, img)
		done()
		if err != nil {
			return errors.Wrapf(err, "detect %s", path)
		}
		logger.Info("processed image",
			zap.String("path", path),
			zap.Int("detections", len(measures)),
		)

		if opts.jsonOut {
			bounds := img.Bounds()
			if err := enc.Encode(result{
				Path:     path,
				Width:    bounds.Dx(),
				Height:   bounds.Dy(),
				Measures: measures,
			}); err != nil {
				return errors.Wrap(err, "failed to write JSON")
			}
		}

		if opts.outDir != "" {
			out := filepath.Join(opts.outDir, annotatedName(path))
			done = prof.StartOperation("render")
			err := writeAnnotated(out, img, measures)
			done()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// inputPaths lists the images to process in order.
func inputPaths(opts options) ([]string, error) {
	if opts.imagePath != "" {
		return []string{opts.imagePath}, nil
	}
	files, err := util.LoadDirectoryImageFiles(opts.dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// annotatedName maps photo.jpg to photo.east.png.
func annotatedName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".east.png"
}
