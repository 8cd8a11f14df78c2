package audio

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verum/internal/forensics"
)

const rate = DefaultSampleRate

func sine(freq, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func whiteNoise(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64() - 0.5
	}
	return out
}

func TestHammingWindow(t *testing.T) {
	w := HammingWindow(5)
	assert.InDelta(t, 0.08, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[2], 1e-12)
	assert.InDelta(t, 0.08, w[4], 1e-12)
	assert.Equal(t, []float64{1}, HammingWindow(1))
}

func TestDCT2(t *testing.T) {
	c := DCT2([]float64{2, 2, 2, 2}, 3)
	assert.InDelta(t, math.Sqrt(0.5)*8, c[0], 1e-9)
	assert.InDelta(t, 0, c[1], 1e-9)
	assert.InDelta(t, 0, c[2], 1e-9)
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 200, 1000, 8000} {
		assert.InDelta(t, hz, MelToHz(HzToMel(hz)), 1e-6)
	}
	assert.InDelta(t, 1000, HzToMel(1000), 1)
}

func TestMelFilterBankShape(t *testing.T) {
	bank := MelFilterBank(26, 512, 256, rate)
	require.Len(t, bank, 26)
	for _, f := range bank {
		require.Len(t, f, 256)
		for _, w := range f {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Zero(t, CosineSimilarity([]float64{1}, []float64{1, 1}))
}

func TestCleanToneScoresZero(t *testing.T) {
	res := Analyze(sine(1000, 0.5, rate), Metadata{SampleRate: rate})

	assert.Equal(t, forensics.StatusAnalyzed, res.Status)
	assert.Equal(t, 97, res.FrameCount)
	require.Len(t, res.MFCC, 97)
	assert.Len(t, res.MFCC[0], 13)
	assert.Len(t, res.MeanMFCC, 13)
	assert.InDelta(t, 1000, res.Spectral.Centroid, 50)
	assert.Less(t, res.Spectral.Flatness, 0.1)
	assert.Zero(t, res.Discontinuities.Count)
	assert.Zero(t, res.TamperingScore)
	assert.Empty(t, res.Findings)
}

func TestWhiteNoiseIsNotFlagged(t *testing.T) {
	res := Analyze(whiteNoise(4096, 1), Metadata{})

	// The periodogram of white noise has exponentially distributed bins,
	// so geometric over arithmetic mean sits near exp(-0.5772).
	assert.InDelta(t, 0.56, res.Spectral.Flatness, 0.08)
	assert.InDelta(t, 4000, res.Spectral.Centroid, 500)
	assert.Zero(t, res.Discontinuities.Count)
	assert.Zero(t, res.TamperingScore)
	assert.Empty(t, res.Findings)
}

func TestFlatSpectrumIsFlagged(t *testing.T) {
	// A single impulse has a perfectly flat magnitude spectrum.
	samples := make([]float64, 4096)
	samples[0] = 1
	res := Analyze(samples, Metadata{})

	assert.InDelta(t, 1, res.Spectral.Flatness, 1e-6)
	var flat bool
	for _, f := range res.Findings {
		flat = flat || f.Category == CategoryFlatness
	}
	assert.True(t, flat)
}

func TestSignalPowerMatchesDirectDFT(t *testing.T) {
	samples := whiteNoise(64, 5)
	fast, size := signalPower(samples)
	require.Equal(t, 64, size)

	direct := newSpectrum(64).power(samples)
	require.Len(t, fast, len(direct))
	for k := range direct {
		assert.InDelta(t, direct[k], fast[k], 1e-9)
	}

	padded, size := signalPower(samples[:50])
	assert.Equal(t, 64, size)
	assert.Len(t, padded, 32)
}

func TestLowCentroidIsFlagged(t *testing.T) {
	res := Analyze(sine(100, 0.5, rate), Metadata{})

	assert.Less(t, res.Spectral.Centroid, DefaultCentroidLow)
	assert.InDelta(t, 0.2, res.TamperingScore, 1e-9)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, CategoryCentroid, res.Findings[0].Category)
}

func TestClicksAreDiscontinuities(t *testing.T) {
	samples := sine(1000, 0.05, rate)
	for k := 0; k < 12; k++ {
		samples[1000*k+500] = 1
	}
	res := Analyze(samples, Metadata{})

	assert.Equal(t, 24, res.Discontinuities.Count)
	assert.Contains(t, res.Discontinuities.Positions, 500)
	assert.Contains(t, res.Discontinuities.Positions, 501)
	assert.GreaterOrEqual(t, res.TamperingScore, 0.5)
	assert.LessOrEqual(t, res.TamperingScore, 1.0)

	var splice *forensics.Finding
	for i := range res.Findings {
		if res.Findings[i].Category == CategorySplice {
			splice = &res.Findings[i]
		}
	}
	require.NotNil(t, splice)
	assert.Equal(t, 1.0, splice.Confidence)
	assert.Equal(t, forensics.SeverityCritical, splice.Severity)
}

func TestVoiceActivitySegments(t *testing.T) {
	samples := make([]float64, 24000)
	copy(samples[8000:16000], sine(1000, 0.5, 8000))
	res := Analyze(samples, Metadata{})

	require.Len(t, res.Segments, 1)
	seg := res.Segments[0]
	assert.Equal(t, 15*512, seg.StartSample)
	assert.Equal(t, 32*512, seg.EndSample)
	assert.InDelta(t, 0.48, seg.StartTime, 1e-9)
	assert.InDelta(t, 1.024, seg.EndTime, 1e-9)
	assert.Greater(t, seg.MeanEnergy, 0.0)
}

func TestShortBurstIsNotASegment(t *testing.T) {
	samples := make([]float64, 24000)
	copy(samples[8000:8800], sine(1000, 0.5, 800))
	res := Analyze(samples, Metadata{})
	assert.Empty(t, res.Segments)
}

func TestShortInputIsZeroPadded(t *testing.T) {
	res := Analyze(sine(1000, 0.5, 100), Metadata{})
	assert.Equal(t, forensics.StatusAnalyzed, res.Status)
	assert.Equal(t, 1, res.FrameCount)
	assert.Empty(t, res.Segments)
}

func TestEmptyAndInvalidInput(t *testing.T) {
	empty := Analyze(nil, Metadata{})
	assert.Equal(t, forensics.StatusEmpty, empty.Status)
	assert.Zero(t, empty.TamperingScore)
	assert.False(t, empty.IsTampered)
	assert.Zero(t, empty.FrameCount)

	tests := []struct {
		name    string
		samples []float64
		meta    Metadata
	}{
		{"declared duration", sine(440, 0.5, rate), Metadata{Duration: 5}},
		{"not a number", []float64{0, math.NaN(), 0}, Metadata{}},
		{"infinite", []float64{math.Inf(1)}, Metadata{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Analyze(tt.samples, tt.meta)
			assert.Equal(t, forensics.StatusRejected, res.Status)
			assert.NotEmpty(t, res.Reason)
			assert.Zero(t, res.TamperingScore)
		})
	}

	ok := Analyze(sine(440, 0.5, rate), Metadata{Duration: 1.0})
	assert.Equal(t, forensics.StatusAnalyzed, ok.Status)
}

func TestCompareSpeakers(t *testing.T) {
	tone := sine(300, 0.4, 8000)
	assert.InDelta(t, 1.0, CompareSpeakers(tone, tone, rate), 1e-9)
	assert.Less(t, CompareSpeakers(tone, whiteNoise(8000, 7), rate), 0.9)
	assert.Zero(t, CompareSpeakers(nil, tone, rate))
}

func TestAudioAnalysisIsDeterministic(t *testing.T) {
	samples := whiteNoise(4000, 3)
	first := Analyze(samples, Metadata{})
	second := Analyze(samples, Metadata{})
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first.TamperingScore, 0.0)
	assert.LessOrEqual(t, first.TamperingScore, 1.0)
	for _, f := range first.Findings {
		assert.GreaterOrEqual(t, f.Confidence, 0.0)
		assert.LessOrEqual(t, f.Confidence, 1.0)
	}
}
