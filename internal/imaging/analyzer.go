package imaging

import (
	"fmt"
	"math"
	"strings"

	"verum/internal/forensics"
)

// Default thresholds. Override through Thresholds.
const (
	DefaultBlockSize           = 8
	DefaultNoiseThreshold      = 15.0
	DefaultAnomalyConfidenceAt = 50.0 // variance at which anomaly confidence saturates
	DefaultMinAnomalies        = 5
	DefaultAnomalySaturation   = 20
)

// Score weights.
const (
	weightAnomalies      = 0.3
	weightNoise          = 0.3
	weightEdited         = 0.4
	weightMissingCapture = 0.2
)

// Finding categories.
const (
	CategoryELAAnomalies      = "ELA_ANOMALIES"
	CategoryNoiseInconsistent = "NOISE_INCONSISTENCY"
	CategoryEditingSoftware   = "EDITING_SOFTWARE"
	CategoryMissingCapture    = "MISSING_CAPTURE_METADATA"
)

// EditingSoftware lists producer-software markers of image editors,
// matched case-insensitively as substrings.
var EditingSoftware = []string{"Photoshop", "GIMP", "Paint", "Editor", "Pixlr"}

// Thresholds holds the overridable constants of the image analyzer.
type Thresholds struct {
	BlockSize           int
	NoiseThreshold      float64
	AnomalyConfidenceAt float64
	MinAnomalies        int
	AnomalySaturation   int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlockSize:           DefaultBlockSize,
		NoiseThreshold:      DefaultNoiseThreshold,
		AnomalyConfidenceAt: DefaultAnomalyConfidenceAt,
		MinAnomalies:        DefaultMinAnomalies,
		AnomalySaturation:   DefaultAnomalySaturation,
	}
}

// AnomalyVariance is the block variance above which a block is anomalous.
func (t Thresholds) AnomalyVariance() float64 { return 2 * t.NoiseThreshold }

// BlockAnomaly is one 8x8 block whose luminance variance is suspicious.
type BlockAnomaly struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Variance   float64 `json:"variance"`
	Confidence float64 `json:"confidence"`
}

// ELAResult summarizes block-level error analysis.
type ELAResult struct {
	AverageVariance       float64        `json:"average_variance"`
	BlockCount            int            `json:"block_count"`
	Anomalies             []BlockAnomaly `json:"anomalies"`
	SuspiciousRegionCount int            `json:"suspicious_region_count"`
}

// NoiseResult summarizes the global Laplacian noise estimate.
type NoiseResult struct {
	AverageNoise float64 `json:"average_noise"`
	IsConsistent bool    `json:"is_consistent"`
}

// Result is the image analyzer output.
type Result struct {
	forensics.Verdict
	Width  int         `json:"width"`
	Height int         `json:"height"`
	ELA    ELAResult   `json:"ela"`
	Noise  NoiseResult `json:"noise"`
	Exif   *ExifData   `json:"exif,omitempty"`
}

// Medium implements forensics.MediumResult.
func (*Result) Medium() forensics.Medium { return forensics.MediumImage }

// Analyzer runs the image pipeline with a fixed set of thresholds.
type Analyzer struct {
	t Thresholds
}

// New creates an analyzer. Non-positive fields fall back to defaults.
func New(t Thresholds) *Analyzer {
	d := DefaultThresholds()
	if t.BlockSize <= 0 {
		t.BlockSize = d.BlockSize
	}
	if t.NoiseThreshold <= 0 {
		t.NoiseThreshold = d.NoiseThreshold
	}
	if t.AnomalyConfidenceAt <= 0 {
		t.AnomalyConfidenceAt = d.AnomalyConfidenceAt
	}
	if t.MinAnomalies < 0 {
		t.MinAnomalies = d.MinAnomalies
	}
	if t.AnomalySaturation <= 0 {
		t.AnomalySaturation = d.AnomalySaturation
	}
	return &Analyzer{t: t}
}

// Analyze runs the image pipeline with default thresholds.
func Analyze(img *PixelBuffer, tags map[string]string) *Result {
	return New(DefaultThresholds()).Analyze(img, tags)
}

// Analyze inspects an RGB image and its optional EXIF tags. A nil tag map
// means no capture metadata was supplied and metadata rules are skipped.
// Unreadable input yields a zero-score result.
func (a *Analyzer) Analyze(img *PixelBuffer, tags map[string]string) *Result {
	if img == nil || len(img.Pix) == 0 {
		return &Result{Verdict: forensics.Empty("no pixel data")}
	}
	if err := img.Validate(); err != nil {
		return &Result{Verdict: forensics.Rejected(err.Error())}
	}

	lum := img.Luminance()
	ela := a.errorLevel(lum, img.Width, img.Height)
	noise := a.noise(lum, img.Width, img.Height)

	var exif *ExifData
	if tags != nil {
		exif = ParseExif(tags)
	}

	var findings []forensics.Finding
	score := 0.0

	if ela.SuspiciousRegionCount > a.t.MinAnomalies {
		ratio := math.Min(float64(ela.SuspiciousRegionCount)/float64(a.t.AnomalySaturation), 1)
		score += weightAnomalies * ratio
		findings = append(findings, forensics.NewFinding(forensics.MediumImage, CategoryELAAnomalies, ratio,
			fmt.Sprintf("%d of %d blocks show elevated compression error variance", ela.SuspiciousRegionCount, ela.BlockCount),
			fmt.Sprintf("average block variance %.2f", ela.AverageVariance)))
	}

	if !noise.IsConsistent {
		score += weightNoise
		findings = append(findings, forensics.NewFinding(forensics.MediumImage, CategoryNoiseInconsistent,
			noise.AverageNoise/(2*a.t.NoiseThreshold),
			"Pixel noise level is inconsistent with a single capture",
			fmt.Sprintf("average Laplacian response %.2f exceeds %.2f", noise.AverageNoise, a.t.NoiseThreshold)))
	}

	if exif != nil {
		if exif.WasEdited {
			score += weightEdited
			findings = append(findings, forensics.NewFinding(forensics.MediumImage, CategoryEditingSoftware, 0.9,
				"Producer software indicates the image was edited",
				"software: "+exif.Software))
		}
		if exif.MissingCaptureInfo {
			score += weightMissingCapture
			gps := "no GPS position"
			if exif.HasGPS() {
				gps = "GPS position retained: " + exif.GPSLatitude + ", " + exif.GPSLongitude
			}
			findings = append(findings, forensics.NewFinding(forensics.MediumImage, CategoryMissingCapture, 0.5,
				"Capture timestamp and camera make are both absent", gps))
		}
	}

	return &Result{
		Verdict: forensics.Analyzed(score, findings),
		Width:   img.Width,
		Height:  img.Height,
		ELA:     ela,
		Noise:   noise,
		Exif:    exif,
	}
}

// errorLevel partitions luminance into non-overlapping blocks and flags the
// ones whose variance exceeds twice the noise threshold. Partial edge blocks
// are skipped.
func (a *Analyzer) errorLevel(lum []float64, w, h int) ELAResult {
	bs := a.t.BlockSize
	res := ELAResult{Anomalies: []BlockAnomaly{}}
	limit := a.t.AnomalyVariance()
	total := 0.0

	for by := 0; by+bs <= h; by += bs {
		for bx := 0; bx+bs <= w; bx += bs {
			v := blockVariance(lum, w, bx, by, bs)
			total += v
			res.BlockCount++
			if v > limit {
				res.Anomalies = append(res.Anomalies, BlockAnomaly{
					X:          bx,
					Y:          by,
					Variance:   v,
					Confidence: math.Min(v/a.t.AnomalyConfidenceAt, 1),
				})
			}
		}
	}
	if res.BlockCount > 0 {
		res.AverageVariance = total / float64(res.BlockCount)
	}
	res.SuspiciousRegionCount = len(res.Anomalies)
	return res
}

// blockVariance is the mean squared deviation of one block.
func blockVariance(lum []float64, w, x0, y0, bs int) float64 {
	n := float64(bs * bs)
	sum := 0.0
	for y := y0; y < y0+bs; y++ {
		row := lum[y*w+x0 : y*w+x0+bs]
		for _, v := range row {
			sum += v
		}
	}
	mean := sum / n
	sq := 0.0
	for y := y0; y < y0+bs; y++ {
		row := lum[y*w+x0 : y*w+x0+bs]
		for _, v := range row {
			d := v - mean
			sq += d * d
		}
	}
	return sq / n
}

// noise averages |4Y(x,y) - sum of the 4 neighbours| over interior pixels.
func (a *Analyzer) noise(lum []float64, w, h int) NoiseResult {
	if w < 3 || h < 3 {
		return NoiseResult{IsConsistent: true}
	}
	sum := 0.0
	count := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			n := lum[(y-1)*w+x] + lum[(y+1)*w+x] + lum[y*w+x-1] + lum[y*w+x+1]
			sum += math.Abs(4*c - n)
			count++
		}
	}
	avg := sum / float64(count)
	return NoiseResult{AverageNoise: avg, IsConsistent: avg < a.t.NoiseThreshold}
}

// isEditingSoftware reports whether a producer string names a known editor.
func isEditingSoftware(software string) bool {
	s := strings.ToLower(software)
	for _, marker := range EditingSoftware {
		if strings.Contains(s, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
