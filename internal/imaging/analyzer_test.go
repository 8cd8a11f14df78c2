package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verum/internal/forensics"
)

func checkerboard(w, h int) *PixelBuffer {
	pb := Uniform(w, h, 0, 0, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				i := (y*w + x) * 3
				pb.Pix[i], pb.Pix[i+1], pb.Pix[i+2] = 255, 255, 255
			}
		}
	}
	return pb
}

func TestUniformImageIsClean(t *testing.T) {
	res := Analyze(Uniform(8, 8, 120, 64, 200), nil)

	assert.Equal(t, forensics.StatusAnalyzed, res.Status)
	assert.Equal(t, 0, res.ELA.SuspiciousRegionCount)
	assert.Equal(t, 1, res.ELA.BlockCount)
	assert.True(t, res.Noise.IsConsistent)
	assert.Zero(t, res.TamperingScore)
	assert.False(t, res.IsTampered)
	assert.Nil(t, res.Exif)
	assert.Empty(t, res.Findings)
}

func TestCheckerboardTriggersELAAndNoise(t *testing.T) {
	res := Analyze(checkerboard(64, 64), nil)

	assert.Equal(t, 64, res.ELA.SuspiciousRegionCount)
	for _, a := range res.ELA.Anomalies {
		assert.Equal(t, 1.0, a.Confidence)
	}
	assert.False(t, res.Noise.IsConsistent)
	assert.InDelta(t, 0.6, res.TamperingScore, 1e-9)
	assert.True(t, res.IsTampered)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, CategoryELAAnomalies, res.Findings[0].Category)
	assert.Equal(t, CategoryNoiseInconsistent, res.Findings[1].Category)
}

func TestExifRules(t *testing.T) {
	tests := []struct {
		name  string
		tags  map[string]string
		score float64
	}{
		{"camera original", map[string]string{"Make": "Canon", "DateTime": "2024:01:02 10:00:00"}, 0},
		{"photoshop", map[string]string{"Make": "Canon", "Software": "Adobe Photoshop 25.0"}, 0.4},
		{"lowercase gimp", map[string]string{"DateTimeOriginal": "2024:01:02 10:00:00", "Software": "gimp 2.10"}, 0.4},
		{"stripped", map[string]string{}, 0.2},
		{"stripped and edited", map[string]string{"Software": "Pixlr"}, 0.6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Analyze(Uniform(16, 16, 10, 10, 10), tc.tags)
			require.NotNil(t, res.Exif)
			assert.InDelta(t, tc.score, res.TamperingScore, 1e-9)
		})
	}
}

func TestMissingCaptureReportsGPS(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"stripped", map[string]string{}, "no GPS position"},
		{"latitude only", map[string]string{TagGPSLatitude: "33.9"}, "no GPS position"},
		{"position kept", map[string]string{TagGPSLatitude: "33.9", TagGPSLongitude: "18.4"}, "GPS position retained: 33.9, 18.4"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Analyze(Uniform(16, 16, 10, 10, 10), tc.tags)
			require.Len(t, res.Findings, 1)
			assert.Equal(t, CategoryMissingCapture, res.Findings[0].Category)
			assert.Equal(t, []string{tc.want}, res.Findings[0].SupportingDetails)
		})
	}
}

func TestInvalidInputNeverPanics(t *testing.T) {
	assert.Equal(t, forensics.StatusEmpty, Analyze(nil, nil).Status)
	assert.Equal(t, forensics.StatusEmpty, Analyze(&PixelBuffer{Width: 4, Height: 4}, nil).Status)

	short := &PixelBuffer{Width: 4, Height: 4, Pix: make([]uint8, 10)}
	res := Analyze(short, map[string]string{"Software": "Photoshop"})
	assert.Equal(t, forensics.StatusRejected, res.Status)
	assert.Zero(t, res.TamperingScore)
}

func TestSmallImagesHaveNoBlocks(t *testing.T) {
	res := Analyze(Uniform(5, 2, 1, 2, 3), nil)
	assert.Equal(t, 0, res.ELA.BlockCount)
	assert.True(t, res.Noise.IsConsistent)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	img := checkerboard(40, 24)
	tags := map[string]string{"Software": "Editor"}
	assert.Equal(t, Analyze(img, tags), Analyze(img, tags))
}

func TestCustomThresholds(t *testing.T) {
	// A mild gradient stays below the stock noise threshold.
	pb := Uniform(16, 16, 0, 0, 0)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			i := (y*16 + x) * 3
			v := uint8((x % 2) * 6)
			pb.Pix[i], pb.Pix[i+1], pb.Pix[i+2] = v, v, v
		}
	}
	assert.True(t, Analyze(pb, nil).Noise.IsConsistent)

	strict := New(Thresholds{NoiseThreshold: 5})
	assert.False(t, strict.Analyze(pb, nil).Noise.IsConsistent)
}

func TestScoresStayInRange(t *testing.T) {
	inputs := []*PixelBuffer{
		Uniform(8, 8, 0, 0, 0),
		checkerboard(128, 128),
		checkerboard(9, 9),
	}
	for _, in := range inputs {
		res := Analyze(in, map[string]string{"Software": "Photoshop"})
		assert.GreaterOrEqual(t, res.TamperingScore, 0.0)
		assert.LessOrEqual(t, res.TamperingScore, 1.0)
		for _, f := range res.Findings {
			assert.GreaterOrEqual(t, f.Confidence, 0.0)
			assert.LessOrEqual(t, f.Confidence, 1.0)
		}
	}
}

func TestLuma(t *testing.T) {
	assert.InDelta(t, 255.0, Luma(255, 255, 255), 1e-9)
	assert.InDelta(t, 76.245, Luma(255, 0, 0), 1e-9)
}
