// Package inference - Inference sessions.
package inference

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-east/inference/providers"
	"github.com/nvr-ai/go-east/models/east"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/model/preprocess"
)

// NewSessionArgs represents the arguments for creating a new EAST session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// SharedLibraryPath locates the onnxruntime library. Empty uses the platform default.
	SharedLibraryPath string
	// InputName is the image input node.
	InputName string
	// ScoresName is the score map output node.
	ScoresName string
	// GeometryName is the geometry output node.
	GeometryName string
	// InputSize is the side of the square network input.
	InputSize int
	// NHWC marks graphs exported with channels-last tensors, as tf2onnx does by default.
	NHWC bool
	// Optimization tunes the session.
	Optimization providers.OptimizationConfig
}

// SessionStats are the cumulative timings of a session.
type SessionStats struct {
	Runs  int64
	Total time.Duration
}

// Average returns the mean run time, or 0 before the first run.
func (s SessionStats) Average() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Runs)
}

// ORTSession runs EAST through ONNX Runtime with preallocated tensors.
//
// The native tensors are bound to the session and shared between calls, so Forward
// holds a mutex for the whole copy-in, run, copy-out cycle.
type ORTSession struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    *ort.Tensor[float32]
	geometry  *ort.Tensor[float32]
	inputSize int
	nhwc      bool
	stats     SessionStats
}

// NewORTSession creates a new ONNX Runtime session for EAST.
//
// Order of operations:
//  1. Argument validation: Rejects input sizes the network cannot consume.
//  2. Environment setup: Loads the native runtime once per process.
//  3. Tensor allocation: Prepares fixed-shape buffers for the image and both output maps.
//  4. Session options: Graph optimization, threading and the execution provider.
//  5. Session creation: Loads the model and binds the tensors.
//
// Arguments:
//   - provider: The execution provider. Nil runs on the CPU.
//   - args: The arguments for the session.
//
// Returns:
//   - *ORTSession: The session, to be released with Close.
//   - error: An error if the session creation fails.
func NewORTSession(provider providers.ExecutionProvider, args NewSessionArgs) (*ORTSession, error) {
	if args.ModelPath == "" {
		return nil, errors.New("NewORTSession requires a model path")
	}
	if args.InputSize <= 0 || args.InputSize%model.InputSizeMultiple != 0 {
		return nil, errors.Wrapf(model.ErrInvalidConfiguration,
			"input size %d must be a positive multiple of %d", args.InputSize, model.InputSizeMultiple)
	}
	if args.InputName == "" {
		args.InputName = east.InputName
	}
	if args.ScoresName == "" {
		args.ScoresName = east.ScoresOutputName
	}
	if args.GeometryName == "" {
		args.GeometryName = east.GeometryOutputName
	}

	if err := providers.InitializeEnvironment(args.SharedLibraryPath); err != nil {
		return nil, err
	}

	size := int64(args.InputSize)
	out := size / east.Stride
	inputShape := ort.NewShape(1, 3, size, size)
	scoresShape := ort.NewShape(1, 1, out, out)
	geometryShape := ort.NewShape(1, east.GeometryChannels, out, out)
	if args.NHWC {
		inputShape = ort.NewShape(1, size, size, 3)
		scoresShape = ort.NewShape(1, out, out, 1)
		geometryShape = ort.NewShape(1, out, out, east.GeometryChannels)
	}

	s := &ORTSession{inputSize: args.InputSize, nhwc: args.NHWC}
	var err error
	if s.input, err = ort.NewEmptyTensor[float32](inputShape); err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	if s.scores, err = ort.NewEmptyTensor[float32](scoresShape); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating scores tensor")
	}
	if s.geometry, err = ort.NewEmptyTensor[float32](geometryShape); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating geometry tensor")
	}

	options, err := providers.NewSessionOptions(args.Optimization, provider)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer options.Destroy()

	s.session, err = ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.InputName},
		[]string{args.ScoresName, args.GeometryName},
		[]ort.ArbitraryTensor{s.input},
		[]ort.ArbitraryTensor{s.scores, s.geometry},
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}

	return s, nil
}

// Forward runs the network on a preprocessed blob.
//
// Arguments:
//   - ctx: Checked before the run; a native run cannot be interrupted.
//   - blob: A (1, 3, S, S) blob matching the session input size.
//
// Returns:
//   - scores: The (1, 1, S/4, S/4) score map.
//   - geometry: The (1, 5, S/4, S/4) geometry map.
//   - error: ErrShapeMismatch for a wrongly sized blob, or the runtime error.
func (s *ORTSession) Forward(ctx context.Context, blob *preprocess.PreprocessingResult) (tensor.Tensor, tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := checkBlob(blob, s.inputSize); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, nil, errors.New("session is closed")
	}

	if s.nhwc {
		chwToHWC(s.input.GetData(), blob.Data, s.inputSize, s.inputSize, 3)
	} else {
		copy(s.input.GetData(), blob.Data)
	}

	start := time.Now()
	if err := s.session.Run(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run inference")
	}
	s.stats.Runs++
	s.stats.Total += time.Since(start)

	out := s.inputSize / east.Stride
	scores := outputMap(s.scores.GetData(), out, 1, s.nhwc)
	geometry := outputMap(s.geometry.GetData(), out, east.GeometryChannels, s.nhwc)
	return scores, geometry, nil
}

// Stats returns the cumulative run statistics.
func (s *ORTSession) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases the resources associated with the session.
func (s *ORTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		if destroyErr := s.session.Destroy(); destroyErr != nil {
			err = errors.Wrap(destroyErr, "error destroying ORT session")
		}
		s.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{s.input, s.scores, s.geometry} {
		if t != nil {
			t.Destroy()
		}
	}
	s.input, s.scores, s.geometry = nil, nil, nil
	return err
}

// checkBlob verifies a blob has shape (1, 3, size, size) and a matching backing slice.
func checkBlob(blob *preprocess.PreprocessingResult, size int) error {
	if blob == nil {
		return errors.New("blob is nil")
	}
	want := []int{1, 3, size, size}
	if len(blob.Shape) != len(want) {
		return errors.Wrapf(model.ErrShapeMismatch, "blob shape %v, want %v", blob.Shape, want)
	}
	for i := range want {
		if blob.Shape[i] != want[i] {
			return errors.Wrapf(model.ErrShapeMismatch, "blob shape %v, want %v", blob.Shape, want)
		}
	}
	if len(blob.Data) != 3*size*size {
		return errors.Wrapf(model.ErrShapeMismatch, "blob holds %d values, want %d", len(blob.Data), 3*size*size)
	}
	return nil
}

// outputMap copies a square output map into a (1, channels, side, side) tensor.
func outputMap(data []float32, side, channels int, nhwc bool) tensor.Tensor {
	backing := make([]float32, channels*side*side)
	if nhwc {
		hwcToCHW(backing, data, side, side, channels)
	} else {
		copy(backing, data)
	}
	return tensor.New(
		tensor.WithShape(1, channels, side, side),
		tensor.WithBacking(backing),
	)
}

// chwToHWC writes the planar src into dst in interleaved order.
func chwToHWC(dst, src []float32, h, w, c int) {
	plane := h * w
	for ch := 0; ch < c; ch++ {
		for i := 0; i < plane; i++ {
			dst[i*c+ch] = src[ch*plane+i]
		}
	}
}

// hwcToCHW writes the interleaved src into dst in planar order.
func hwcToCHW(dst, src []float32, h, w, c int) {
	plane := h * w
	for ch := 0; ch < c; ch++ {
		for i := 0; i < plane; i++ {
			dst[ch*plane+i] = src[i*c+ch]
		}
	}
}
