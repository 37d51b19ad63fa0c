//go:build !whisper_cpp

package whisper

import "fmt"

// Load reports the runtime as unavailable; rebuild with -tags whisper_cpp to link whisper.cpp.
func Load(modelPath, language string, threads int) (Runtime, error) {
	return nil, fmt.Errorf("%w: built without whisper_cpp tag (model %s)", ErrUnavailable, modelPath)
}
