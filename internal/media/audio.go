package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"verum/internal/audio"
)

// ErrInvalidWAV reports a stream that is not a PCM WAV file.
var ErrInvalidWAV = errors.New("media: not a valid PCM WAV stream")

// Audio is a decoded recording downmixed to mono in [-1, 1].
type Audio struct {
	Samples    []float64
	SampleRate int
	Channels   int
	BitDepth   int
}

// Metadata returns what the container declares about the recording.
func (a *Audio) Metadata() audio.Metadata {
	if a == nil || a.SampleRate <= 0 {
		return audio.Metadata{}
	}
	return audio.Metadata{
		SampleRate: a.SampleRate,
		Duration:   float64(len(a.Samples)) / float64(a.SampleRate),
	}
}

// DecodeWAV decodes a PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (*Audio, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("media: decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, ErrInvalidWAV
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(d.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInvalidWAV, depth)
	}

	channels := buf.Format.NumChannels
	scale := math.Ldexp(1, depth-1)
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range samples {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / scale
	}

	return &Audio{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   channels,
		BitDepth:   depth,
	}, nil
}

// LoadWAV reads and decodes a WAV file.
func LoadWAV(path string) (*Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: read audio: %w", err)
	}
	return DecodeWAV(bytes.NewReader(data))
}

// EncodeWAV writes mono samples in [-1, 1] as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("media: encode wav: %w", err)
	}
	return enc.Close()
}
