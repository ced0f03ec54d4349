// Package providers - Utility functions.
package providers

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryEnv overrides the ONNX Runtime shared library location.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library, or "" when the platform is unsupported.
func GetSharedLibPath() string {
	if path := os.Getenv(SharedLibraryEnv); path != "" {
		return path
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}

var (
	environmentOnce sync.Once
	environmentErr  error
)

// InitializeEnvironment loads the ONNX Runtime shared library and prepares the
// process-wide environment. Only the first call has an effect; later calls return
// the first result.
//
// Arguments:
//   - libPath: The shared library path. Empty uses GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libPath string) error {
	environmentOnce.Do(func() {
		if libPath == "" {
			libPath = GetSharedLibPath()
		}
		if libPath == "" {
			environmentErr = errors.Errorf("no onnxruntime library available for %s/%s", runtime.GOOS, runtime.GOARCH)
			return
		}
		if _, err := os.Stat(libPath); err != nil {
			environmentErr = errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
			return
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			environmentErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return environmentErr
}
