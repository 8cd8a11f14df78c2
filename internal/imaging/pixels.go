// Package imaging detects still-image manipulation from block-level
// compression error variance, pixel noise consistency and capture metadata.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Errors
var (
	ErrInvalidDimensions = errors.New("imaging: invalid dimensions")
	ErrPixelCount        = errors.New("imaging: pixel data does not match dimensions")
)

// PixelBuffer is a decoded image: row-major RGB, three bytes per pixel.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelBuffer validates that pix holds exactly width*height RGB triples.
func NewPixelBuffer(width, height int, pix []uint8) (*PixelBuffer, error) {
	pb := &PixelBuffer{Width: width, Height: height, Pix: pix}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return pb, nil
}

// FromImage converts any image.Image into an RGB pixel buffer.
func FromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}
	return &PixelBuffer{Width: w, Height: h, Pix: pix}
}

// Validate reports whether the buffer is internally consistent.
func (p *PixelBuffer) Validate() error {
	if p == nil || p.Width <= 0 || p.Height <= 0 {
		return ErrInvalidDimensions
	}
	if len(p.Pix) != p.Width*p.Height*3 {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrPixelCount, len(p.Pix), p.Width*p.Height*3)
	}
	return nil
}

// RGB returns the color components at (x, y).
func (p *PixelBuffer) RGB(x, y int) (r, g, b uint8) {
	i := (y*p.Width + x) * 3
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Luminance returns the BT.601 luma plane as a row-major slice.
func (p *PixelBuffer) Luminance() []float64 {
	lum := make([]float64, p.Width*p.Height)
	for i := range lum {
		j := i * 3
		lum[i] = Luma(p.Pix[j], p.Pix[j+1], p.Pix[j+2])
	}
	return lum
}

// Luma computes Y = 0.299R + 0.587G + 0.114B.
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// LumaMilli is Luma scaled by 1000 in exact integer arithmetic.
func LumaMilli(r, g, b uint8) int64 {
	return 299*int64(r) + 587*int64(g) + 114*int64(b)
}

// ColorModel implements image.Image.
func (p *PixelBuffer) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (p *PixelBuffer) Bounds() image.Rectangle { return image.Rect(0, 0, p.Width, p.Height) }

// At implements image.Image.
func (p *PixelBuffer) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return color.RGBA{}
	}
	r, g, b := p.RGB(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Uniform returns a buffer filled with a single color.
func Uniform(width, height int, r, g, b uint8) *PixelBuffer {
	pix := make([]uint8, width*height*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return &PixelBuffer{Width: width, Height: height, Pix: pix}
}
