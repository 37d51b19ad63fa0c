package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// WhisperSampleRate is the rate the whisper runtime expects.
const WhisperSampleRate = 16000

// ErrInvalidWAV is returned when a file is not a decodable PCM WAV.
var ErrInvalidWAV = errors.New("invalid wav file")

// DecodeWAV decodes interleaved PCM into float32 samples in [-1,1].
// Returns (samples, sampleRate, channels).
func DecodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: no pcm data", ErrInvalidWAV)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}

	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = WhisperSampleRate
	}
	chans := int(dec.NumChans)
	if chans == 0 && buf.Format != nil {
		chans = buf.Format.NumChannels
	}
	if chans <= 0 {
		chans = 1
	}
	return out, sr, chans, nil
}

// DecodeWAVFile reads a WAV file and returns mono samples and their sample rate.
func DecodeWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	samples, sr, chans, err := DecodeWAV(f)
	if err != nil {
		return nil, 0, err
	}
	return Downmix(samples, chans), sr, nil
}

// LoadForWhisper decodes a WAV file into 16 kHz mono samples.
func LoadForWhisper(path string) ([]float32, error) {
	samples, sr, err := DecodeWAVFile(path)
	if err != nil {
		return nil, err
	}
	return ResampleLinear(samples, sr, WhisperSampleRate), nil
}

// Downmix averages interleaved channels into a mono signal.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ResampleLinear resamples PCM32F from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		if inRate == outRate {
			return append([]float32(nil), samples...)
		}
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		s0 := samples[i0]
		s1 := samples[i0+1]
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}
