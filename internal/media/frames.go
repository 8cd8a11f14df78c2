package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"verum/internal/imaging"
)

// ErrNoFrames reports a frame directory without decodable images.
var ErrNoFrames = errors.New("media: no frames found")

var frameExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".webp": true,
}

// LoadFrames decodes every image in dir, in lexical file-name order, as a
// video frame sequence. Extracting frames from a container is left to the
// capture tooling.
func (d *Decoder) LoadFrames(dir string) ([]*imaging.PixelBuffer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("media: read frame dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, ErrNoFrames
	}
	sort.Strings(names)

	frames := make([]*imaging.PixelBuffer, 0, len(names))
	for _, name := range names {
		img, err := d.LoadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", name, err)
		}
		frames = append(frames, img.Pixels)
	}
	return frames, nil
}
