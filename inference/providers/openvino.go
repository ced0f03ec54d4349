// Package providers - OpenVINO based execution provider.
package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	DeviceID string `json:"deviceID"     yaml:"deviceID"`
	// Overrides the accelerator hardware type (CPU, GPU, NPU).
	DeviceType string `json:"deviceType"   yaml:"deviceType"`
	// One of FP32, FP16 or ACCURACY. Empty keeps the device default.
	Precision string `json:"precision"    yaml:"precision"`
	// Overrides the default number of inference threads. 0 keeps the default.
	NumOfThreads int `json:"numOfThreads" yaml:"numOfThreads"`
	// Overrides the default number of streams. 0 keeps the default.
	NumStreams int `json:"numStreams"   yaml:"numStreams"`
}

func (OpenVINOOptions) isProviderOptions() {}

// settings returns the non-empty options as provider key/value pairs.
func (o OpenVINOOptions) settings() map[string]string {
	settings := map[string]string{}
	if o.DeviceID != "" {
		settings["device_id"] = o.DeviceID
	}
	if o.DeviceType != "" {
		settings["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		settings["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		settings["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		settings["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	return settings
}

// OpenVINOProvider implements the ExecutionProvider interface.
type OpenVINOProvider struct {
	options OpenVINOOptions
}

// NewOpenVINOProvider creates a new OpenVINO provider.
func NewOpenVINOProvider(options OpenVINOOptions) *OpenVINOProvider {
	return &OpenVINOProvider{options: options}
}

// Backend returns the backend of the OpenVINO provider.
func (p *OpenVINOProvider) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Options returns the options of the OpenVINO provider.
func (p *OpenVINOProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers OpenVINO on the session options.
func (p *OpenVINOProvider) Apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderOpenVINO(p.options.settings()); err != nil {
		return errors.Wrap(err, "error enabling OpenVINO")
	}
	return nil
}
