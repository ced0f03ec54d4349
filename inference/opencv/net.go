// Package opencv - EAST inference through the OpenCV DNN module.
package opencv

import (
	"context"
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-east/models/east"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/model/preprocess"
)

// Args configures a Net.
type Args struct {
	// ModelPath is the frozen graph (.pb) or any format cv::dnn::readNet accepts.
	ModelPath string
	// ConfigPath is the optional network description (.pbtxt).
	ConfigPath string
	// ScoresName is the score map layer.
	ScoresName string
	// GeometryName is the geometry layer.
	GeometryName string
	// InputSize is the side of the square network input.
	InputSize int
	// UseCUDA selects the CUDA backend and target instead of the CPU.
	UseCUDA bool
}

// Net runs EAST with gocv.ReadNet.
type Net struct {
	mu        sync.Mutex
	net       gocv.Net
	layers    []string
	inputSize int
	loaded    bool
}

// NewNet loads the network.
//
// Arguments:
//   - args: The model location, layer names and input size.
//
// Returns:
//   - *Net: The loaded network, to be released with Close.
//   - error: An error if the model file is missing or cannot be parsed.
func NewNet(args Args) (*Net, error) {
	if args.InputSize <= 0 || args.InputSize%model.InputSizeMultiple != 0 {
		return nil, errors.Wrapf(model.ErrInvalidConfiguration,
			"input size %d must be a positive multiple of %d", args.InputSize, model.InputSizeMultiple)
	}
	if _, err := os.Stat(args.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file not found: %s", args.ModelPath)
	}
	if args.ScoresName == "" {
		args.ScoresName = east.ScoresOutputName
	}
	if args.GeometryName == "" {
		args.GeometryName = east.GeometryOutputName
	}

	net := gocv.ReadNet(args.ModelPath, args.ConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load model: %s", args.ModelPath)
	}

	if args.UseCUDA {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendOpenCV)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	return &Net{
		net:       net,
		layers:    []string{args.ScoresName, args.GeometryName},
		inputSize: args.InputSize,
		loaded:    true,
	}, nil
}

// Forward runs the network on a preprocessed (1, 3, S, S) blob.
//
// The blob must already carry the mean subtraction and channel order the graph
// expects; no further normalization happens here.
func (n *Net) Forward(ctx context.Context, blob *preprocess.PreprocessingResult) (tensor.Tensor, tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	size := n.inputSize
	if blob == nil || len(blob.Data) != 3*size*size {
		return nil, nil, errors.Wrapf(model.ErrShapeMismatch, "blob does not match a %dx%d input", size, size)
	}

	input, err := gocv.NewMatWithSizesFromBytes([]int{1, 3, size, size}, gocv.MatTypeCV32F, float32Bytes(blob.Data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build input blob")
	}
	defer input.Close()

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.loaded {
		return nil, nil, errors.New("network is closed")
	}

	n.net.SetInput(input, "")
	outputs := n.net.ForwardLayers(n.layers)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()
	if len(outputs) != 2 {
		return nil, nil, errors.Errorf("expected 2 outputs, got %d", len(outputs))
	}

	scores, err := matTensor(outputs[0])
	if err != nil {
		return nil, nil, errors.Wrap(err, "scores")
	}
	geometry, err := matTensor(outputs[1])
	if err != nil {
		return nil, nil, errors.Wrap(err, "geometry")
	}
	return scores, geometry, nil
}

// Close releases the network.
func (n *Net) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.loaded {
		n.loaded = false
		return n.net.Close()
	}
	return nil
}

// matTensor copies a float32 Mat into a tensor of the same shape.
func matTensor(m gocv.Mat) (tensor.Tensor, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	backing := make([]float32, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithShape(m.Size()...), tensor.WithBacking(backing)), nil
}

// float32Bytes views a float32 slice as its raw bytes.
func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}
