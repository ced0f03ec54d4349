// Package providers - CUDA based execution provider.
package providers

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"              yaml:"deviceID"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// The size limit of the device memory arena in bytes. 0 leaves the runtime default.
	GPUMemLimit int64 `json:"gpuMemLimit"           yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo, 1: kSameAsRequested
	ArenaExtendStrategy int `json:"arenaExtendStrategy"   yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch"   yaml:"cudnnConvAlgoSearch"`
	// Allow TF32 math on Ampere and newer GPUs.
	UseTF32 int `json:"useTF32"               yaml:"useTF32"`
}

func (CUDAOptions) isProviderOptions() {}

// settings returns the options as the key/value pairs understood by ONNX Runtime.
func (o CUDAOptions) settings() map[string]string {
	settings := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream": fmt.Sprintf("%d", boolToInt(o.DoCopyInDefaultStream)),
		"arena_extend_strategy":     pick(arenaStrategies, o.ArenaExtendStrategy),
		"cudnn_conv_algo_search":    pick(convAlgoSearches, o.CudnnConvAlgoSearch),
		"use_tf32":                  strconv.Itoa(o.UseTF32),
	}
	if o.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	return settings
}

var (
	arenaStrategies  = []string{"kNextPowerOfTwo", "kSameAsRequested"}
	convAlgoSearches = []string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

// pick returns values[i], or the first value when i is out of range.
func pick(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return values[0]
	}
	return values[i]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(options CUDAOptions) *CUDAProvider {
	return &CUDAProvider{options: options}
}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers CUDA on the session options.
func (p *CUDAProvider) Apply(options *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return errors.Wrap(err, "error creating CUDA provider options")
	}
	defer cuda.Destroy()

	if err := cuda.Update(p.options.settings()); err != nil {
		return errors.Wrap(err, "error updating CUDA provider options")
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return errors.Wrap(err, "error enabling CUDA")
	}
	return nil
}
