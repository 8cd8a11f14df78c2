package video

import (
	"image"
	"strings"

	"golang.org/x/image/draw"

	"verum/internal/imaging"
)

// HashSize is the edge of the downscaled luminance grid used for pHash.
const HashSize = 32

// HashLength is the number of hex characters in a perceptual hash.
const HashLength = HashSize * HashSize / 4

const hexDigits = "0123456789abcdef"

// PerceptualHash downscales a frame to 32x32, thresholds each pixel's
// luminance at the frame mean and packs the bits four to a hex nibble,
// most significant bit first.
func PerceptualHash(frame *imaging.PixelBuffer) string {
	if frame == nil || frame.Validate() != nil {
		return ""
	}

	small := image.NewRGBA(image.Rect(0, 0, HashSize, HashSize))
	draw.BiLinear.Scale(small, small.Bounds(), frame, frame.Bounds(), draw.Src, nil)

	// Integer luma keeps the mean comparison exact: Y > mean <=> Y*n > sum.
	lum := make([]int64, HashSize*HashSize)
	var sum int64
	for y := 0; y < HashSize; y++ {
		for x := 0; x < HashSize; x++ {
			i := small.PixOffset(x, y)
			v := imaging.LumaMilli(small.Pix[i], small.Pix[i+1], small.Pix[i+2])
			lum[y*HashSize+x] = v
			sum += v
		}
	}
	n := int64(len(lum))

	var sb strings.Builder
	sb.Grow(HashLength)
	for i := 0; i < len(lum); i += 4 {
		nibble := 0
		for b := 0; b < 4; b++ {
			nibble <<= 1
			if lum[i+b]*n > sum {
				nibble |= 1
			}
		}
		sb.WriteByte(hexDigits[nibble])
	}
	return sb.String()
}

// Similarity is the fraction of positions at which two hashes carry the same
// hex character. Hashes of different length, or empty hashes, share nothing.
func Similarity(a, b string) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	same := 0
	for i := 0; i < len(a); i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}
