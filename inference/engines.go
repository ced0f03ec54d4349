// Package inference - Inference engine interface and implementations
package inference

// EngineType is the type of the engine
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library
	EngineONNX EngineType = "onnx"
	// EngineOpenCV is the OpenCV DNN engine that reads the frozen TensorFlow graph
	EngineOpenCV EngineType = "opencv"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineONNX, EngineOpenCV}
