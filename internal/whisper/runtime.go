// Package whisper wraps the whisper.cpp runtime used by the local engine.
// Builds without the whisper_cpp tag carry a stub whose Load always fails.
package whisper

import "errors"

// ErrUnavailable is returned by Load when the runtime cannot be initialised.
var ErrUnavailable = errors.New("whisper runtime unavailable")

// Runtime transcribes 16 kHz mono PCM32F samples.
type Runtime interface {
	Transcribe(samples []float32) (string, error)
	Close() error
}

// Loader matches Load and lets callers substitute a runtime in tests.
type Loader func(modelPath, language string, threads int) (Runtime, error)
