//go:build whisper_cpp

package whisper

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// cppRuntime is backed by one whisper.cpp model shared by all workers.
type cppRuntime struct {
	model    whisperpkg.Model
	threads  uint
	language string
	mu       sync.Mutex // whisper.cpp contexts must not run concurrently on one model
}

func Load(modelPath, language string, threads int) (Runtime, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrUnavailable, modelPath, err)
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if language == "" {
		language = "auto"
	}

	m, err := whisperpkg.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load model: %v", ErrUnavailable, err)
	}
	log.Info().Str("model", modelPath).Int("threads", threads).Str("language", language).Msg("whisper: model loaded")
	return &cppRuntime{model: m, threads: uint(threads), language: language}, nil
}

func (r *cppRuntime) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Transcribe runs one full-file pass and joins the decoded segments.
func (r *cppRuntime) Transcribe(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(r.threads)
	if err := ctx.SetLanguage(r.language); err != nil {
		log.Warn().Err(err).Str("language", r.language).Msg("whisper: language rejected, using auto")
		_ = ctx.SetLanguage("auto")
	}
	ctx.SetTranslate(false)
	ctx.SetSplitOnWord(true)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	full := strings.TrimSpace(strings.Join(segments, " "))
	log.Debug().
		Int("segments", len(segments)).
		Int("samples", len(samples)).
		Str("lang", ctx.DetectedLanguage()).
		Msg("whisper: transcription complete")
	return full, nil
}
