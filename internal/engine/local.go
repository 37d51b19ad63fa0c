package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/audio"
	"github.com/obiente/translate/batchscribe/internal/config"
	"github.com/obiente/translate/batchscribe/internal/whisper"
)

// LocalEngine runs an on-device whisper.cpp model. The model is loaded on first use;
// a load failure is remembered and reported for every later file.
type LocalEngine struct {
	modelPath string
	language  string
	threads   int
	load      whisper.Loader
	conv      *audio.Converter
	log       zerolog.Logger

	once    sync.Once
	mu      sync.Mutex
	rt      whisper.Runtime
	loadErr error
}

func NewLocal(cfg config.EngineConfig, log zerolog.Logger) *LocalEngine {
	return NewLocalForTests(cfg, log, whisper.Load, audio.NewConverter(cfg.FFmpegPath))
}

// NewLocalForTests builds a LocalEngine with an injected runtime loader and converter.
func NewLocalForTests(cfg config.EngineConfig, log zerolog.Logger, load whisper.Loader, conv *audio.Converter) *LocalEngine {
	return &LocalEngine{
		modelPath: cfg.ModelPath,
		language:  cfg.Language,
		threads:   cfg.Threads,
		load:      load,
		conv:      conv,
		log:       log.With().Str("component", "engine.local").Logger(),
	}
}

func (e *LocalEngine) Name() string { return "local" }

func (e *LocalEngine) Transcribe(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", newError(ErrNotFound, path, "", err)
	}
	if info.IsDir() {
		return "", newError(ErrUnsupportedFormat, path, "is a directory", nil)
	}

	rt, err := e.runtime()
	if err != nil {
		return "", newError(ErrRuntimeUnavailable, path, "", err)
	}

	samples, err := e.samples(ctx, path)
	if err != nil {
		return "", err
	}

	text, err := rt.Transcribe(samples)
	if err != nil {
		return "", newError(ErrTransientBackend, path, "inference failed", err)
	}
	return strings.TrimSpace(text), nil
}

// samples decodes path into 16 kHz mono PCM, converting non-WAV input through ffmpeg.
func (e *LocalEngine) samples(ctx context.Context, path string) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".wav" {
		s, err := audio.LoadForWhisper(path)
		if err != nil {
			return nil, newError(ErrUnsupportedFormat, path, "decode wav", err)
		}
		return s, nil
	}

	// conversion is not cut short by an interrupt
	wavPath, err := e.conv.ToWAV(context.WithoutCancel(ctx), path)
	if err != nil {
		if errors.Is(err, audio.ErrFFmpegMissing) {
			return nil, newError(ErrUnsupportedFormat, path, fmt.Sprintf("cannot decode %s without ffmpeg", ext), err)
		}
		return nil, newError(ErrUnsupportedFormat, path, "convert", err)
	}
	defer os.Remove(wavPath)

	s, err := audio.LoadForWhisper(wavPath)
	if err != nil {
		return nil, newError(ErrUnsupportedFormat, path, "decode converted audio", err)
	}
	e.log.Debug().Str("path", path).Int("samples", len(s)).Msg("converted with ffmpeg")
	return s, nil
}

func (e *LocalEngine) runtime() (whisper.Runtime, error) {
	e.once.Do(func() {
		rt, err := e.load(e.modelPath, e.language, e.threads)
		e.mu.Lock()
		defer e.mu.Unlock()
		if err != nil {
			e.loadErr = err
			e.log.Error().Err(err).Str("model", e.modelPath).Msg("whisper runtime failed to load")
			return
		}
		e.rt = rt
		e.log.Info().Str("model", e.modelPath).Msg("whisper runtime ready")
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rt == nil && e.loadErr == nil {
		return nil, errors.New("engine closed")
	}
	return e.rt, e.loadErr
}

func (e *LocalEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rt == nil {
		return nil
	}
	err := e.rt.Close()
	e.rt = nil
	return err
}
