// Package media decodes evidence files into the in-memory buffers the
// analyzers consume: RGB pixel buffers with an EXIF tag map, mono PCM
// samples, and ordered frame sequences.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"verum/internal/imaging"
)

// DefaultMaxPixels bounds decoded image size.
const DefaultMaxPixels = 64 << 20

// Errors
var (
	ErrUnsupportedImage = errors.New("media: unsupported image format")
	ErrImageTooLarge    = errors.New("media: image exceeds pixel limit")
)

// Image is a decoded still image.
type Image struct {
	Pixels *imaging.PixelBuffer
	Format string
	Tags   map[string]string
}

// Decoder decodes evidence media with resource limits.
type Decoder struct {
	MaxPixels int
}

// NewDecoder returns a Decoder with default limits.
func NewDecoder() *Decoder {
	return &Decoder{MaxPixels: DefaultMaxPixels}
}

// DecodeImage decodes a JPEG, PNG, GIF, BMP, TIFF or WebP image and, where
// the container carries it, its EXIF block.
func (d *Decoder) DecodeImage(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, fmt.Errorf("media: decode image config: %w", err)
	}
	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > limit/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("media: decode %s: %w", format, err)
	}
	return &Image{
		Pixels: imaging.FromImage(img),
		Format: format,
		Tags:   ReadExif(bytes.NewReader(data)),
	}, nil
}

// LoadImage reads and decodes an image file.
func (d *Decoder) LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: read image: %w", err)
	}
	return d.DecodeImage(data)
}

// ReadExif returns the EXIF tags of a JPEG or TIFF stream as a flat
// name/value map. Streams without EXIF yield an empty map.
func ReadExif(r io.Reader) map[string]string {
	tags := make(map[string]string)
	x, err := exif.Decode(r)
	if err != nil {
		return tags
	}
	_ = x.Walk(tagCollector(tags))

	// Replace rational triples with signed decimal degrees.
	if lat, long, err := x.LatLong(); err == nil {
		tags[imaging.TagGPSLatitude] = strconv.FormatFloat(lat, 'f', 6, 64)
		tags[imaging.TagGPSLongitude] = strconv.FormatFloat(long, 'f', 6, 64)
	}
	return tags
}

type tagCollector map[string]string

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag == nil {
		return nil
	}
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			c[string(name)] = s
			return nil
		}
	}
	c[string(name)] = tag.String()
	return nil
}
