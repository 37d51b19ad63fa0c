package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/audio"
	"github.com/obiente/translate/batchscribe/internal/audio/audiotest"
	"github.com/obiente/translate/batchscribe/internal/config"
	"github.com/obiente/translate/batchscribe/internal/whisper"
)

type fakeRuntime struct {
	text   string
	err    error
	calls  atomic.Int32
	closed atomic.Bool
	last   atomic.Int64
}

func (f *fakeRuntime) Transcribe(samples []float32) (string, error) {
	f.calls.Add(1)
	f.last.Store(int64(len(samples)))
	return f.text, f.err
}

func (f *fakeRuntime) Close() error {
	f.closed.Store(true)
	return nil
}

type countingLoader struct {
	rt    whisper.Runtime
	err   error
	loads atomic.Int32
}

func (l *countingLoader) load(string, string, int) (whisper.Runtime, error) {
	l.loads.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.rt, nil
}

type noRunner struct{}

func (noRunner) Run(context.Context, string, ...string) (audio.CommandResult, error) {
	return audio.CommandResult{}, errors.New("runner must not be called")
}

func noFFmpeg(string) (string, error) { return "", errors.New("not found") }

func localEngine(loader *countingLoader) *LocalEngine {
	cfg := config.EngineConfig{Kind: config.EngineLocal, ModelPath: "model.bin", Language: "auto", Threads: 1}
	conv := audio.NewConverterForTests("ffmpeg", noRunner{}, noFFmpeg)
	return NewLocalForTests(cfg, zerolog.Nop(), loader.load, conv)
}

// TestLocalTranscribesWAV verifies a WAV file is decoded, resampled and transcribed.
func TestLocalTranscribesWAV(t *testing.T) {
	rt := &fakeRuntime{text: " hello world "}
	loader := &countingLoader{rt: rt}
	e := localEngine(loader)

	path := filepath.Join(t.TempDir(), "tone.wav")
	audiotest.WriteTone(t, path, 8000, 1)

	got, err := e.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "hello world" {
		t.Fatalf("transcript = %q", got)
	}
	if n := rt.last.Load(); n != 16000 {
		t.Fatalf("runtime got %d samples, want 16000", n)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !rt.closed.Load() {
		t.Fatal("runtime not closed")
	}
}

// TestLocalLoadsRuntimeOnce verifies concurrent callers share one lazy load.
func TestLocalLoadsRuntimeOnce(t *testing.T) {
	loader := &countingLoader{rt: &fakeRuntime{text: "ok"}}
	e := localEngine(loader)
	path := filepath.Join(t.TempDir(), "tone.wav")
	audiotest.WriteTone(t, path, 16000, 0.2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Transcribe(context.Background(), path); err != nil {
				t.Errorf("Transcribe() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
}

// TestLocalRuntimeFailureIsCached verifies a failed load is reported for every file.
func TestLocalRuntimeFailureIsCached(t *testing.T) {
	loader := &countingLoader{err: whisper.ErrUnavailable}
	e := localEngine(loader)
	path := filepath.Join(t.TempDir(), "tone.wav")
	audiotest.WriteTone(t, path, 16000, 0.2)

	for i := 0; i < 3; i++ {
		_, err := e.Transcribe(context.Background(), path)
		if !errors.Is(err, ErrRuntimeUnavailable) {
			t.Fatalf("call %d error = %v, want ErrRuntimeUnavailable", i, err)
		}
		if IsTransient(err) {
			t.Fatal("runtime unavailability must not be transient")
		}
	}
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
}

// TestLocalInputErrors covers missing files, corrupt WAVs and formats needing ffmpeg.
func TestLocalInputErrors(t *testing.T) {
	loader := &countingLoader{rt: &fakeRuntime{text: "unused"}}
	e := localEngine(loader)
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.wav")
	if err := os.WriteFile(corrupt, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mp3 := filepath.Join(dir, "clip.mp3")
	if err := os.WriteFile(mp3, []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cases := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "none.wav"), ErrNotFound},
		{"corrupt wav", corrupt, ErrUnsupportedFormat},
		{"mp3 without ffmpeg", mp3, ErrUnsupportedFormat},
		{"directory", dir, ErrUnsupportedFormat},
	}
	for _, tc := range cases {
		_, err := e.Transcribe(context.Background(), tc.path)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
}

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) Run(context.Context, string, ...string) (audio.CommandResult, error) {
	r.runs.Add(1)
	return audio.CommandResult{Stderr: "boom"}, errors.New("exit status 1")
}

// TestLocalMissingRuntimeSkipsConversion verifies a failed load is reported before any
// decoding or ffmpeg work.
func TestLocalMissingRuntimeSkipsConversion(t *testing.T) {
	loader := &countingLoader{err: whisper.ErrUnavailable}
	runner := &countingRunner{}
	cfg := config.EngineConfig{Kind: config.EngineLocal, ModelPath: "model.bin", Threads: 1}
	conv := audio.NewConverterForTests("ffmpeg", runner, func(string) (string, error) { return "/usr/bin/ffmpeg", nil })
	e := NewLocalForTests(cfg, zerolog.Nop(), loader.load, conv)

	dir := t.TempDir()
	mp3 := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(mp3, []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	corrupt := filepath.Join(dir, "corrupt.wav")
	if err := os.WriteFile(corrupt, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, path := range []string{mp3, corrupt} {
		_, err := e.Transcribe(context.Background(), path)
		if !errors.Is(err, ErrRuntimeUnavailable) {
			t.Fatalf("%s: error = %v, want ErrRuntimeUnavailable", filepath.Base(path), err)
		}
	}
	if n := runner.runs.Load(); n != 0 {
		t.Fatalf("ffmpeg runs = %d, want 0", n)
	}
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
}

// TestErrorUnwrapsKindAndCause verifies errors.Is reaches both the kind and the cause.
func TestErrorUnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := error(newError(ErrTransientBackend, "/a.wav", "request", cause))
	if !errors.Is(err, ErrTransientBackend) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	if KindOf(err) != ErrTransientBackend {
		t.Fatalf("KindOf = %v", KindOf(err))
	}
	if got := err.Error(); got != "transient backend error: request: boom" {
		t.Fatalf("Error() = %q", got)
	}
}
