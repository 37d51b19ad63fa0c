package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrFFmpegMissing is returned when no ffmpeg binary can be located.
var ErrFFmpegMissing = errors.New("ffmpeg not found")

// ConversionError carries the ffmpeg stderr tail of a failed conversion.
type ConversionError struct {
	Input  string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", filepath.Base(e.Input), e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", filepath.Base(e.Input), e.Err, e.Stderr)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CommandResult is the captured output of one process run.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution for tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// Converter turns arbitrary media into 16 kHz mono WAV through ffmpeg.
type Converter struct {
	ffmpegPath string
	runner     CommandRunner
	lookPath   func(string) (string, error)
}

func NewConverter(ffmpegPath string) *Converter {
	return NewConverterForTests(ffmpegPath, execRunner{}, exec.LookPath)
}

// NewConverterForTests builds a Converter with an injected runner and binary lookup.
func NewConverterForTests(ffmpegPath string, runner CommandRunner, lookPath func(string) (string, error)) *Converter {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{ffmpegPath: ffmpegPath, runner: runner, lookPath: lookPath}
}

// Available reports whether the ffmpeg binary can be resolved.
func (c *Converter) Available() bool {
	_, err := c.lookPath(c.ffmpegPath)
	return err == nil
}

// ToWAV converts input into a temporary WAV file. The caller removes the returned path.
func (c *Converter) ToWAV(ctx context.Context, input string) (string, error) {
	bin, err := c.lookPath(c.ffmpegPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFFmpegMissing, c.ffmpegPath)
	}

	tmp, err := os.CreateTemp("", "batchscribe-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	out := tmp.Name()
	tmp.Close()

	// ffmpeg -nostdin -y -i input -vn -ac 1 -ar 16000 -f wav output
	res, err := c.runner.Run(ctx, bin,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y", "-i", input,
		"-vn", "-ac", "1", "-ar", "16000",
		"-acodec", "pcm_s16le", "-f", "wav",
		out,
	)
	if err != nil {
		os.Remove(out)
		return "", &ConversionError{Input: input, Stderr: tail(res.Stderr, 400), Err: err}
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}
