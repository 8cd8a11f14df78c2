// Package audio detects audio manipulation from MFCC-family spectral
// features, voice-activity segmentation and waveform discontinuities.
package audio

import (
	"fmt"
	"math"
	"sort"

	"verum/internal/forensics"
)

// Default thresholds. Override through Thresholds.
const (
	DefaultSampleRate              = 16000
	DefaultFrameSize               = 512
	DefaultHopSize                 = 160
	DefaultMelBands                = 26
	DefaultCoefficients            = 13
	DefaultRolloffFraction         = 0.85
	DefaultFlatnessLimit           = 0.8
	DefaultCentroidLow             = 200.0
	DefaultCentroidHigh            = 8000.0
	DefaultDiscontinuityFactor     = 5.0
	DefaultDiscontinuitySaturation = 10
	DefaultVADPercentile           = 0.25
	DefaultVADMultiplier           = 2.0
	DefaultMinSegmentSeconds       = 0.1
	DefaultDurationTolerance       = 0.01
)

// Score weights.
const (
	weightFlatness      = 0.3
	weightCentroid      = 0.2
	weightDiscontinuity = 0.5
)

const logFloor = 1e-10

// maxReportedPositions caps the discontinuity offsets kept in a result.
const maxReportedPositions = 100

// Finding categories.
const (
	CategorySplice   = "SPLICE_DISCONTINUITY"
	CategoryFlatness = "SPECTRAL_FLATNESS"
	CategoryCentroid = "CENTROID_OUT_OF_RANGE"
)

// Thresholds holds the overridable constants of the audio analyzer.
type Thresholds struct {
	FrameSize               int
	HopSize                 int
	MelBands                int
	Coefficients            int
	RolloffFraction         float64
	FlatnessLimit           float64
	CentroidLow             float64
	CentroidHigh            float64
	DiscontinuityFactor     float64
	DiscontinuitySaturation int
	VADPercentile           float64
	VADMultiplier           float64
	MinSegmentSeconds       float64
	DurationTolerance       float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FrameSize:               DefaultFrameSize,
		HopSize:                 DefaultHopSize,
		MelBands:                DefaultMelBands,
		Coefficients:            DefaultCoefficients,
		RolloffFraction:         DefaultRolloffFraction,
		FlatnessLimit:           DefaultFlatnessLimit,
		CentroidLow:             DefaultCentroidLow,
		CentroidHigh:            DefaultCentroidHigh,
		DiscontinuityFactor:     DefaultDiscontinuityFactor,
		DiscontinuitySaturation: DefaultDiscontinuitySaturation,
		VADPercentile:           DefaultVADPercentile,
		VADMultiplier:           DefaultVADMultiplier,
		MinSegmentSeconds:       DefaultMinSegmentSeconds,
		DurationTolerance:       DefaultDurationTolerance,
	}
}

// Metadata is the declared description of a recording. A zero SampleRate
// means 16 kHz; a zero Duration is not checked.
type Metadata struct {
	SampleRate int
	Duration   float64 // seconds
}

// SpectralFeatures describe the power spectrum of the whole recording.
type SpectralFeatures struct {
	Centroid  float64 `json:"centroid_hz"`
	Bandwidth float64 `json:"bandwidth_hz"`
	Rolloff   float64 `json:"rolloff_hz"`
	Flatness  float64 `json:"flatness"`
	Energy    float64 `json:"energy"`
}

// VoiceSegment is a contiguous run of above-threshold block energy.
type VoiceSegment struct {
	StartSample int     `json:"start_sample"`
	EndSample   int     `json:"end_sample"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	MeanEnergy  float64 `json:"mean_energy"`
}

// Duration returns the segment length in seconds.
func (s VoiceSegment) Duration() float64 { return s.EndTime - s.StartTime }

// Discontinuities counts adjacent-sample jumps that exceed the limit.
type Discontinuities struct {
	Count            int     `json:"count"`
	MeanAbsAmplitude float64 `json:"mean_abs_amplitude"`
	Limit            float64 `json:"limit"`
	Positions        []int   `json:"positions"`
}

// Result is the audio analyzer output.
type Result struct {
	forensics.Verdict
	SampleRate      int              `json:"sample_rate"`
	SampleCount     int              `json:"sample_count"`
	DurationSeconds float64          `json:"duration_seconds"`
	FrameCount      int              `json:"frame_count"`
	MFCC            [][]float64      `json:"-"`
	MeanMFCC        []float64        `json:"mean_mfcc"`
	Spectral        SpectralFeatures `json:"spectral"`
	Segments        []VoiceSegment   `json:"segments"`
	Discontinuities Discontinuities  `json:"discontinuities"`
}

// Medium implements forensics.MediumResult.
func (*Result) Medium() forensics.Medium { return forensics.MediumAudio }

// Analyzer runs the audio pipeline with a fixed set of thresholds.
type Analyzer struct {
	t      Thresholds
	window []float64
	dft    *spectrum
}

// New creates an analyzer. Non-positive fields fall back to defaults.
func New(t Thresholds) *Analyzer {
	d := DefaultThresholds()
	if t.FrameSize <= 1 {
		t.FrameSize = d.FrameSize
	}
	if t.HopSize <= 0 {
		t.HopSize = d.HopSize
	}
	if t.MelBands <= 0 {
		t.MelBands = d.MelBands
	}
	if t.Coefficients <= 0 {
		t.Coefficients = d.Coefficients
	}
	if t.RolloffFraction <= 0 || t.RolloffFraction > 1 {
		t.RolloffFraction = d.RolloffFraction
	}
	if t.FlatnessLimit <= 0 {
		t.FlatnessLimit = d.FlatnessLimit
	}
	if t.CentroidLow <= 0 {
		t.CentroidLow = d.CentroidLow
	}
	if t.CentroidHigh <= 0 {
		t.CentroidHigh = d.CentroidHigh
	}
	if t.DiscontinuityFactor <= 0 {
		t.DiscontinuityFactor = d.DiscontinuityFactor
	}
	if t.DiscontinuitySaturation <= 0 {
		t.DiscontinuitySaturation = d.DiscontinuitySaturation
	}
	if t.VADPercentile <= 0 || t.VADPercentile >= 1 {
		t.VADPercentile = d.VADPercentile
	}
	if t.VADMultiplier <= 0 {
		t.VADMultiplier = d.VADMultiplier
	}
	if t.MinSegmentSeconds <= 0 {
		t.MinSegmentSeconds = d.MinSegmentSeconds
	}
	if t.DurationTolerance <= 0 {
		t.DurationTolerance = d.DurationTolerance
	}
	return &Analyzer{
		t:      t,
		window: HammingWindow(t.FrameSize),
		dft:    newSpectrum(t.FrameSize),
	}
}

// Analyze runs the audio pipeline with default thresholds.
func Analyze(samples []float64, meta Metadata) *Result {
	return New(DefaultThresholds()).Analyze(samples, meta)
}

// Analyze inspects mono PCM samples. Empty input yields an all-zero result;
// non-finite samples or a declared duration that disagrees with the sample
// count yield a rejected one.
func (a *Analyzer) Analyze(samples []float64, meta Metadata) *Result {
	rate := meta.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if len(samples) == 0 {
		return &Result{Verdict: forensics.Empty("no samples"), SampleRate: rate, Segments: []VoiceSegment{}}
	}
	if reason := a.validate(samples, rate, meta.Duration); reason != "" {
		return &Result{Verdict: forensics.Rejected(reason), SampleRate: rate, Segments: []VoiceSegment{}}
	}

	spectra := a.powerSpectra(samples)
	bank := MelFilterBank(a.t.MelBands, a.t.FrameSize, a.t.FrameSize/2, rate)
	mfcc := make([][]float64, len(spectra))
	for i, p := range spectra {
		mfcc[i] = a.cepstrum(p, bank)
	}
	full, size := signalPower(samples)
	spectral := a.spectralFeatures(full, float64(rate)/float64(size))
	disc := a.discontinuities(samples)

	var findings []forensics.Finding
	score := 0.0

	if spectral.Flatness > a.t.FlatnessLimit {
		score += weightFlatness
		findings = append(findings, forensics.NewFinding(forensics.MediumAudio, CategoryFlatness, spectral.Flatness,
			"Spectrum is noise-like, consistent with synthesized or pasted noise floor",
			fmt.Sprintf("flatness %.3f exceeds %.2f", spectral.Flatness, a.t.FlatnessLimit)))
	}
	if spectral.Energy > 0 && (spectral.Centroid > a.t.CentroidHigh || spectral.Centroid < a.t.CentroidLow) {
		score += weightCentroid
		findings = append(findings, forensics.NewFinding(forensics.MediumAudio, CategoryCentroid, 0.4,
			"Spectral centroid lies outside the range of natural speech recordings",
			fmt.Sprintf("centroid %.1f Hz outside [%.0f, %.0f]", spectral.Centroid, a.t.CentroidLow, a.t.CentroidHigh)))
	}
	if disc.Count > 0 {
		ratio := math.Min(float64(disc.Count)/float64(a.t.DiscontinuitySaturation), 1)
		score += weightDiscontinuity * ratio
		findings = append(findings, forensics.NewFinding(forensics.MediumAudio, CategorySplice, ratio,
			fmt.Sprintf("%d abrupt sample-to-sample jumps suggest splicing", disc.Count),
			fmt.Sprintf("jump limit %.4f (%.0fx mean absolute amplitude %.4f)", disc.Limit, a.t.DiscontinuityFactor, disc.MeanAbsAmplitude)))
	}

	return &Result{
		Verdict:         forensics.Analyzed(score, findings),
		SampleRate:      rate,
		SampleCount:     len(samples),
		DurationSeconds: float64(len(samples)) / float64(rate),
		FrameCount:      len(spectra),
		MFCC:            mfcc,
		MeanMFCC:        meanVector(mfcc, a.t.Coefficients),
		Spectral:        spectral,
		Segments:        a.segments(samples, rate),
		Discontinuities: disc,
	}
}

func (a *Analyzer) validate(samples []float64, rate int, declared float64) string {
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Sprintf("sample %d is not finite", i)
		}
	}
	if declared > 0 {
		actual := float64(len(samples)) / float64(rate)
		tolerance := math.Max(declared*a.t.DurationTolerance, float64(a.t.FrameSize)/float64(rate))
		if math.Abs(actual-declared) > tolerance {
			return fmt.Sprintf("declared duration %.3fs but samples cover %.3fs", declared, actual)
		}
	}
	return ""
}

// frames slices samples into overlapping windows. Input shorter than one
// frame becomes a single zero-padded frame.
func (a *Analyzer) frames(samples []float64) [][]float64 {
	n := a.t.FrameSize
	count := 1
	if len(samples) > n {
		count = 1 + (len(samples)-n)/a.t.HopSize
	}
	out := make([][]float64, count)
	for f := range out {
		frame := make([]float64, n)
		start := f * a.t.HopSize
		for i := 0; i < n && start+i < len(samples); i++ {
			frame[i] = samples[start+i] * a.window[i]
		}
		out[f] = frame
	}
	return out
}

func (a *Analyzer) powerSpectra(samples []float64) [][]float64 {
	frames := a.frames(samples)
	out := make([][]float64, len(frames))
	for i, f := range frames {
		out[i] = a.dft.power(f)
	}
	return out
}

func (a *Analyzer) cepstrum(power []float64, bank [][]float64) []float64 {
	logE := make([]float64, len(bank))
	for m, filter := range bank {
		e := 0.0
		for k, w := range filter {
			e += w * power[k]
		}
		logE[m] = math.Log(e + logFloor)
	}
	return DCT2(logE, a.t.Coefficients)
}

// spectralFeatures summarizes a power spectrum whose bin k sits at
// k*binHz Hz.
func (a *Analyzer) spectralFeatures(power []float64, binHz float64) SpectralFeatures {
	var total, weighted float64
	for k, p := range power {
		total += p
		weighted += float64(k) * binHz * p
	}
	if total <= 0 {
		return SpectralFeatures{}
	}
	centroid := weighted / total

	spread := 0.0
	for k, p := range power {
		d := float64(k)*binHz - centroid
		spread += d * d * p
	}

	rolloff := 0.0
	cum := 0.0
	for k, p := range power {
		cum += p
		if cum >= a.t.RolloffFraction*total {
			rolloff = float64(k) * binHz
			break
		}
	}

	logSum := 0.0
	for _, p := range power {
		logSum += math.Log(p + logFloor)
	}
	n := float64(len(power))
	flatness := math.Exp(logSum/n) / (total / n)

	return SpectralFeatures{
		Centroid:  centroid,
		Bandwidth: math.Sqrt(spread / total),
		Rolloff:   rolloff,
		Flatness:  forensics.Clamp01(flatness),
		Energy:    total,
	}
}

func (a *Analyzer) discontinuities(samples []float64) Discontinuities {
	sum := 0.0
	for _, s := range samples {
		sum += math.Abs(s)
	}
	mean := sum / float64(len(samples))
	d := Discontinuities{MeanAbsAmplitude: mean, Limit: a.t.DiscontinuityFactor * mean, Positions: []int{}}
	if mean == 0 {
		return d
	}
	for i := 1; i < len(samples); i++ {
		if math.Abs(samples[i]-samples[i-1]) > d.Limit {
			d.Count++
			if len(d.Positions) < maxReportedPositions {
				d.Positions = append(d.Positions, i)
			}
		}
	}
	return d
}

// segments runs energy-based voice activity detection over non-overlapping
// frame-sized blocks. A partial tail block is ignored.
func (a *Analyzer) segments(samples []float64, rate int) []VoiceSegment {
	block := a.t.FrameSize
	count := len(samples) / block
	out := []VoiceSegment{}
	if count == 0 {
		return out
	}

	energy := make([]float64, count)
	for b := range energy {
		sum := 0.0
		for _, s := range samples[b*block : (b+1)*block] {
			sum += s * s
		}
		energy[b] = sum / float64(block)
	}

	sorted := append([]float64(nil), energy...)
	sort.Float64s(sorted)
	threshold := a.t.VADMultiplier * sorted[int(a.t.VADPercentile*float64(count-1))]

	emit := func(start, end int) {
		seg := VoiceSegment{
			StartSample: start * block,
			EndSample:   end * block,
			StartTime:   float64(start*block) / float64(rate),
			EndTime:     float64(end*block) / float64(rate),
		}
		if seg.Duration() <= a.t.MinSegmentSeconds {
			return
		}
		for _, e := range energy[start:end] {
			seg.MeanEnergy += e
		}
		seg.MeanEnergy /= float64(end - start)
		out = append(out, seg)
	}

	start := -1
	for b, e := range energy {
		switch {
		case e > threshold && start < 0:
			start = b
		case e <= threshold && start >= 0:
			emit(start, b)
			start = -1
		}
	}
	if start >= 0 {
		emit(start, count)
	}
	return out
}

func meanVector(rows [][]float64, width int) []float64 {
	mean := make([]float64, width)
	if len(rows) == 0 {
		return mean
	}
	for _, r := range rows {
		for i := 0; i < width && i < len(r); i++ {
			mean[i] += r[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}
	return mean
}

// MeanMFCC returns the per-coefficient average MFCC vector of a clip.
func (a *Analyzer) MeanMFCC(samples []float64, sampleRate int) []float64 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if len(samples) == 0 {
		return make([]float64, a.t.Coefficients)
	}
	bank := MelFilterBank(a.t.MelBands, a.t.FrameSize, a.t.FrameSize/2, sampleRate)
	spectra := a.powerSpectra(samples)
	rows := make([][]float64, len(spectra))
	for i, p := range spectra {
		rows[i] = a.cepstrum(p, bank)
	}
	return meanVector(rows, a.t.Coefficients)
}

// CompareSpeakers returns the cosine similarity of the mean MFCC vectors of
// two clips. An empty clip compares as 0.
func (a *Analyzer) CompareSpeakers(first, second []float64, sampleRate int) float64 {
	if len(first) == 0 || len(second) == 0 {
		return 0
	}
	return CosineSimilarity(a.MeanMFCC(first, sampleRate), a.MeanMFCC(second, sampleRate))
}

// CompareSpeakers compares two clips with default thresholds.
func CompareSpeakers(first, second []float64, sampleRate int) float64 {
	return New(DefaultThresholds()).CompareSpeakers(first, second, sampleRate)
}
