package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/obiente/translate/batchscribe/internal/audio/audiotest"
)

// TestDecodeWAVFileDownmixes verifies stereo input is averaged into mono floats.
func TestDecodeWAVFileDownmixes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	audiotest.WriteWAV(t, path, 8000, 2, []int{16384, 0, -16384, -16384, 0, 16384})

	samples, sr, err := DecodeWAVFile(path)
	if err != nil {
		t.Fatalf("DecodeWAVFile() error = %v", err)
	}
	if sr != 8000 {
		t.Fatalf("sample rate = %d, want 8000", sr)
	}
	want := []float32{0.25, -0.5, 0.25}
	if len(samples) != len(want) {
		t.Fatalf("samples = %v, want %v", samples, want)
	}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-4 {
			t.Fatalf("sample[%d] = %v, want %v", i, samples[i], want[i])
		}
	}
}

// TestLoadForWhisperResamples verifies output is at 16 kHz.
func TestLoadForWhisperResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	audiotest.WriteTone(t, path, 8000, 0.5)

	samples, err := LoadForWhisper(path)
	if err != nil {
		t.Fatalf("LoadForWhisper() error = %v", err)
	}
	if len(samples) != 8000 {
		t.Fatalf("len = %d, want 8000", len(samples))
	}
}

// TestDecodeWAVFileRejectsGarbage verifies non-wav input maps to ErrInvalidWAV.
func TestDecodeWAVFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := DecodeWAVFile(path); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("DecodeWAVFile() error = %v, want ErrInvalidWAV", err)
	}
}

// TestResampleLinear checks length scaling and the identity case.
func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	if got := ResampleLinear(in, 8000, 16000); len(got) != 8 {
		t.Fatalf("upsampled len = %d, want 8", len(got))
	}
	same := ResampleLinear(in, 16000, 16000)
	same[0] = 42
	if in[0] != 0 {
		t.Fatal("identity resample must copy")
	}
}

type fakeRunner struct {
	name   string
	args   []string
	result CommandResult
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (CommandResult, error) {
	f.name = name
	f.args = append([]string(nil), args...)
	return f.result, f.err
}

func found(name string) (string, error) { return "/usr/bin/" + name, nil }

func missing(string) (string, error) { return "", errors.New("not in PATH") }

// TestConverterBuildsFFmpegCommand verifies the ffmpeg invocation for 16 kHz mono output.
func TestConverterBuildsFFmpegCommand(t *testing.T) {
	runner := &fakeRunner{}
	conv := NewConverterForTests("ffmpeg", runner, found)

	out, err := conv.ToWAV(context.Background(), "/in/clip.mp3")
	if err != nil {
		t.Fatalf("ToWAV() error = %v", err)
	}
	defer os.Remove(out)

	if runner.name != "/usr/bin/ffmpeg" {
		t.Fatalf("binary = %q", runner.name)
	}
	joined := strings.Join(runner.args, " ")
	for _, want := range []string{"-i /in/clip.mp3", "-ac 1", "-ar 16000", out} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
}

// TestConverterFailureCarriesStderr verifies conversion errors keep the ffmpeg output tail.
func TestConverterFailureCarriesStderr(t *testing.T) {
	runner := &fakeRunner{
		result: CommandResult{Stderr: "Invalid data found when processing input", ExitCode: 1},
		err:    errors.New("exit status 1"),
	}
	conv := NewConverterForTests("ffmpeg", runner, found)

	_, err := conv.ToWAV(context.Background(), "/in/broken.ogg")
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("ToWAV() error = %v, want ConversionError", err)
	}
	if !strings.Contains(convErr.Error(), "Invalid data") {
		t.Fatalf("error = %q, want stderr tail", convErr.Error())
	}
}

// TestTailKeepsWholeRunes verifies the stderr tail never splits a multi-byte character.
func TestTailKeepsWholeRunes(t *testing.T) {
	got := tail("ошибка: файл повреждён", 9)
	if !utf8.ValidString(got) {
		t.Fatalf("tail = %q, not valid UTF-8", got)
	}
	if got != "...повреждён" {
		t.Fatalf("tail = %q, want %q", got, "...повреждён")
	}
	if got := tail("  short  ", 8); got != "short" {
		t.Fatalf("tail = %q, want %q", got, "short")
	}
}

// TestConverterMissingBinary verifies a missing ffmpeg is reported without running anything.
func TestConverterMissingBinary(t *testing.T) {
	runner := &fakeRunner{}
	conv := NewConverterForTests("ffmpeg", runner, missing)
	if conv.Available() {
		t.Fatal("Available() = true, want false")
	}
	if _, err := conv.ToWAV(context.Background(), "/in/a.mp3"); !errors.Is(err, ErrFFmpegMissing) {
		t.Fatalf("ToWAV() error = %v, want ErrFFmpegMissing", err)
	}
	if runner.name != "" {
		t.Fatal("runner must not be called")
	}
}
