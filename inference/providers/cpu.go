// Package providers - CPU based execution provider.
package providers

import ort "github.com/yalue/onnxruntime_go"

const (
	// CPUProviderBackend is the default ONNX Runtime CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// CPUOptions contains arguments for the CPU provider. The CPU provider is always
// registered by ONNX Runtime and takes no options.
type CPUOptions struct{}

func (CPUOptions) isProviderOptions() {}

// CPUProvider implements the ExecutionProvider interface.
type CPUProvider struct {
	options CPUOptions
}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider(options CPUOptions) *CPUProvider {
	return &CPUProvider{options: options}
}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options of the CPU provider.
func (p *CPUProvider) Options() ProviderOptions {
	return p.options
}

// Apply is a no-op: ONNX Runtime falls back to the CPU for every node.
func (p *CPUProvider) Apply(*ort.SessionOptions) error {
	return nil
}
