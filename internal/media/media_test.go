package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	data := encodePNG(t, solid(4, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

	img, err := NewDecoder().DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 4, img.Pixels.Width)
	assert.Equal(t, 3, img.Pixels.Height)
	require.NoError(t, img.Pixels.Validate())
	r, g, b := img.Pixels.RGB(2, 1)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})
	assert.Empty(t, img.Tags)
}

func TestDecodeJPEGWithoutExif(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(16, 16, color.NRGBA{R: 200, G: 200, B: 200, A: 255}), nil))

	img, err := NewDecoder().DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.Empty(t, img.Tags)
}

func TestDecodeBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, solid(2, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 255})))

	img, err := NewDecoder().DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "bmp", img.Format)
	r, g, b := img.Pixels.RGB(1, 1)
	assert.Equal(t, [3]uint8{1, 2, 3}, [3]uint8{r, g, b})
}

func TestDecodeImageErrors(t *testing.T) {
	_, err := NewDecoder().DecodeImage([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	d := &Decoder{MaxPixels: 10}
	_, err = d.DecodeImage(encodePNG(t, solid(4, 4, color.NRGBA{A: 255})))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestReadExifWithoutExif(t *testing.T) {
	assert.Empty(t, ReadExif(strings.NewReader("garbage")))
}

func writeWAV(t *testing.T, path string, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 8000, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	samples := []float64{0, 0.5, -0.5, 0.25, -1, 1}

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, EncodeWAV(f, samples, 16000))
	require.NoError(t, f.Close())

	a, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, a.SampleRate)
	assert.Equal(t, 1, a.Channels)
	assert.Equal(t, 16, a.BitDepth)
	require.Len(t, a.Samples, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], a.Samples[i], 1e-3)
	}

	meta := a.Metadata()
	assert.Equal(t, 16000, meta.SampleRate)
	assert.InDelta(t, 6.0/16000, meta.Duration, 1e-12)
}

func TestWAVStereoIsDownmixed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeWAV(t, path, 2, []int{16384, 0, -16384, -16384})

	a, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Channels)
	require.Len(t, a.Samples, 2)
	assert.InDelta(t, 0.25, a.Samples[0], 1e-9)
	assert.InDelta(t, -0.5, a.Samples[1], 1e-9)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV(bytes.NewReader([]byte("RIFF....not really")))
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestLoadFramesOrdersByName(t *testing.T) {
	dir := t.TempDir()
	shades := map[string]uint8{"frame_002.png": 20, "frame_001.png": 10, "frame_010.png": 100}
	for name, v := range shades {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), encodePNG(t, solid(2, 2, color.NRGBA{R: v, G: v, B: v, A: 255})), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	frames, err := NewDecoder().LoadFrames(dir)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, want := range []uint8{10, 20, 100} {
		r, _, _ := frames[i].RGB(0, 0)
		assert.Equal(t, want, r, "frame %d", i)
	}
}

func TestLoadFramesEmptyDir(t *testing.T) {
	_, err := NewDecoder().LoadFrames(t.TempDir())
	assert.ErrorIs(t, err, ErrNoFrames)
}
