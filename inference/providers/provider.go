// Package providers - Execution providers for ONNX Runtime sessions.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the name of the provider.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Apply registers the provider on the session options.
	Apply(options *ort.SessionOptions) error
}

// Backends lists the supported providers.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// NewProvider creates a new provider from its options.
//
// Arguments:
//   - options: The options for the provider. A nil value selects the CPU provider.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the options type is not supported.
func NewProvider(options ProviderOptions) (ExecutionProvider, error) {
	switch opts := options.(type) {
	case nil:
		return NewCPUProvider(CPUOptions{}), nil
	case CPUOptions:
		return NewCPUProvider(opts), nil
	case CoreMLOptions:
		return NewCoreMLProvider(opts), nil
	case OpenVINOOptions:
		return NewOpenVINOProvider(opts), nil
	case CUDAOptions:
		return NewCUDAProvider(opts), nil
	default:
		return nil, errors.Errorf("unsupported provider options type: %T", opts)
	}
}

// NewProviderForBackend creates a provider with default options for a backend name, as
// given on a command line or in a config file.
func NewProviderForBackend(backend ProviderBackend) (ExecutionProvider, error) {
	switch backend {
	case CPUProviderBackend, "":
		return NewProvider(CPUOptions{})
	case CUDAProviderBackend:
		return NewProvider(CUDAOptions{DoCopyInDefaultStream: true})
	case CoreMLProviderBackend:
		return NewProvider(CoreMLOptions{})
	case OpenVINOProviderBackend:
		return NewProvider(OpenVINOOptions{DeviceType: "CPU"})
	default:
		return nil, errors.Errorf("no matching provider backend registered: %s", backend)
	}
}
