// Package engine turns one media file into one transcript, either with a local
// whisper.cpp model or through a remote OpenAI-compatible API.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/config"
)

// Engine transcribes a single file. Implementations are safe for concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Name() string
	Close() error
}

// New builds the engine selected by cfg.Kind.
func New(cfg config.EngineConfig, log zerolog.Logger) (Engine, error) {
	switch cfg.Kind {
	case config.EngineLocal:
		return NewLocal(cfg, log), nil
	case config.EngineRemote:
		e, err := NewRemote(cfg, log)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
	}
}
