// Package video detects manipulation in decoded frame sequences through
// perceptual hashing, scene structure, temporal continuity and re-encoding
// artifacts.
package video

import (
	"fmt"
	"math"
	"strings"
	"time"

	"verum/internal/forensics"
	"verum/internal/imaging"
)

// Default thresholds. Override through Thresholds.
const (
	DefaultSampleInterval          = 5
	DefaultAssumedFrameRate        = 30.0
	DefaultSceneSimilarity         = 0.7
	DefaultGOPTolerance            = 0.5
	DefaultContinuousSimilarity    = 0.3
	DefaultCutSimilarity           = 0.1
	DefaultDiscontinuitySimilarity = 0.2
	DefaultEdgeVariance            = 50.0
	DefaultBlockHitSaturation      = 64
	DefaultDuplicateConfidence     = 0.8
	DefaultFrameCountTolerance     = 0.1
)

const (
	weightBlocking       = 0.5
	weightMultiplePasses = 0.3
	weightMissingDate    = 0.2
	blockSize            = 8
)

// Anomaly and finding categories.
const (
	AnomalyDuplicateFrames     = "DUPLICATE_FRAMES"
	AnomalyVisualDiscontinuity = "VISUAL_DISCONTINUITY"
	CategoryGOPInconsistent    = "GOP_INCONSISTENT"
	CategoryTemporal           = "TEMPORAL_INCONSISTENCY"
	CategoryReEncoding         = "RE_ENCODING"
)

// Thresholds holds the overridable constants of the video analyzer.
type Thresholds struct {
	SampleInterval          int
	AssumedFrameRate        float64
	SceneSimilarity         float64
	GOPTolerance            float64
	ContinuousSimilarity    float64
	CutSimilarity           float64
	DiscontinuitySimilarity float64
	EdgeVariance            float64
	BlockHitSaturation      int
	DuplicateConfidence     float64
	FrameCountTolerance     float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SampleInterval:          DefaultSampleInterval,
		AssumedFrameRate:        DefaultAssumedFrameRate,
		SceneSimilarity:         DefaultSceneSimilarity,
		GOPTolerance:            DefaultGOPTolerance,
		ContinuousSimilarity:    DefaultContinuousSimilarity,
		CutSimilarity:           DefaultCutSimilarity,
		DiscontinuitySimilarity: DefaultDiscontinuitySimilarity,
		EdgeVariance:            DefaultEdgeVariance,
		BlockHitSaturation:      DefaultBlockHitSaturation,
		DuplicateConfidence:     DefaultDuplicateConfidence,
		FrameCountTolerance:     DefaultFrameCountTolerance,
	}
}

// Metadata is what the container declared about the stream.
type Metadata struct {
	Duration            time.Duration `json:"duration"`
	FrameRate           float64       `json:"frame_rate"`
	Width               int           `json:"width"`
	Height              int           `json:"height"`
	Codec               string        `json:"codec"`
	EncodingPasses      int           `json:"encoding_passes"`
	HasEmbeddedMetadata bool          `json:"has_embedded_metadata"`
	CreationDate        *time.Time    `json:"creation_date,omitempty"`
}

// FrameHash is the perceptual hash of one sampled frame.
type FrameHash struct {
	FrameIndex int     `json:"frame_index"`
	Hash       string  `json:"hash"`
	Timestamp  float64 `json:"timestamp"`
}

// GOPAnalysis describes the scene/keyframe structure.
type GOPAnalysis struct {
	KeyframeIndices  []int   `json:"keyframe_indices"`
	GOPLengths       []int   `json:"gop_lengths"`
	AverageGOPLength float64 `json:"average_gop_length"`
	SceneChanges     int     `json:"scene_changes"`
	IsConsistent     bool    `json:"is_consistent"`
}

// ReEncoding describes compression artifacts and container hints.
type ReEncoding struct {
	BlockHits           int     `json:"block_hits"`
	BlockingScore       float64 `json:"blocking_score"`
	MultiplePasses      bool    `json:"multiple_passes"`
	MissingCreationDate bool    `json:"missing_creation_date"`
	Score               float64 `json:"score"`
}

// Anomaly is a frame-level irregularity.
type Anomaly struct {
	Type         string  `json:"type"`
	FrameIndex   int     `json:"frame_index"`
	RelatedFrame int     `json:"related_frame"`
	Confidence   float64 `json:"confidence"`
	Description  string  `json:"description"`
}

// Result is the video analyzer output.
type Result struct {
	forensics.Verdict
	FrameCount          int         `json:"frame_count"`
	Hashes              []FrameHash `json:"hashes"`
	GOP                 GOPAnalysis `json:"gop"`
	TemporalConsistency float64     `json:"temporal_consistency"`
	ReEncoding          ReEncoding  `json:"re_encoding"`
	Anomalies           []Anomaly   `json:"anomalies"`
}

// Medium implements forensics.MediumResult.
func (*Result) Medium() forensics.Medium { return forensics.MediumVideo }

// Analyzer runs the video pipeline with a fixed set of thresholds.
type Analyzer struct {
	t Thresholds
}

// New creates an analyzer. Non-positive fields fall back to defaults.
func New(t Thresholds) *Analyzer {
	d := DefaultThresholds()
	if t.SampleInterval <= 0 {
		t.SampleInterval = d.SampleInterval
	}
	if t.AssumedFrameRate <= 0 {
		t.AssumedFrameRate = d.AssumedFrameRate
	}
	if t.SceneSimilarity <= 0 {
		t.SceneSimilarity = d.SceneSimilarity
	}
	if t.GOPTolerance <= 0 {
		t.GOPTolerance = d.GOPTolerance
	}
	if t.ContinuousSimilarity <= 0 {
		t.ContinuousSimilarity = d.ContinuousSimilarity
	}
	if t.CutSimilarity <= 0 {
		t.CutSimilarity = d.CutSimilarity
	}
	if t.DiscontinuitySimilarity <= 0 {
		t.DiscontinuitySimilarity = d.DiscontinuitySimilarity
	}
	if t.EdgeVariance <= 0 {
		t.EdgeVariance = d.EdgeVariance
	}
	if t.BlockHitSaturation <= 0 {
		t.BlockHitSaturation = d.BlockHitSaturation
	}
	if t.DuplicateConfidence <= 0 {
		t.DuplicateConfidence = d.DuplicateConfidence
	}
	if t.FrameCountTolerance <= 0 {
		t.FrameCountTolerance = d.FrameCountTolerance
	}
	return &Analyzer{t: t}
}

// Analyze runs the video pipeline with default thresholds.
func Analyze(frames []*imaging.PixelBuffer, meta Metadata) *Result {
	return New(DefaultThresholds()).Analyze(frames, meta)
}

// Analyze inspects an ordered frame sequence against its declared metadata.
func (a *Analyzer) Analyze(frames []*imaging.PixelBuffer, meta Metadata) *Result {
	if len(frames) == 0 {
		return &Result{Verdict: forensics.Empty("no frames"), TemporalConsistency: 1, GOP: GOPAnalysis{IsConsistent: true}}
	}
	if err := a.validate(frames, meta); err != nil {
		return &Result{Verdict: forensics.Rejected(err.Error()), TemporalConsistency: 1, GOP: GOPAnalysis{IsConsistent: true}}
	}

	hashes := a.hashFrames(frames)
	res := &Result{
		FrameCount:          len(frames),
		Hashes:              hashes,
		TemporalConsistency: 1,
		GOP:                 GOPAnalysis{KeyframeIndices: []int{0}, GOPLengths: []int{}, IsConsistent: true},
		Anomalies:           []Anomaly{},
	}
	if len(frames) < 2 {
		res.Verdict = forensics.Analyzed(0, nil)
		return res
	}

	res.GOP = a.gopStructure(hashes)
	res.TemporalConsistency = a.temporalConsistency(hashes)
	res.ReEncoding = a.reEncoding(frames[len(frames)/2], meta)
	res.Anomalies = a.detectAnomalies(hashes)

	anomalyMean := 0.0
	if len(res.Anomalies) > 0 {
		for _, an := range res.Anomalies {
			anomalyMean += an.Confidence
		}
		anomalyMean /= float64(len(res.Anomalies))
	}

	score := forensics.BoolScore(!res.GOP.IsConsistent, 0.25) +
		0.25*(1-res.TemporalConsistency) +
		0.25*res.ReEncoding.Score +
		0.25*anomalyMean

	res.Verdict = forensics.Analyzed(score, a.findings(res))
	return res
}

// validate rejects frames that disagree with each other or with the
// declared geometry and duration. An undeclared dimension is taken from the
// first frame.
func (a *Analyzer) validate(frames []*imaging.PixelBuffer, meta Metadata) error {
	w, h := meta.Width, meta.Height
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if w == 0 {
			w = f.Width
		}
		if h == 0 {
			h = f.Height
		}
		if f.Width != w || f.Height != h {
			return fmt.Errorf("frame %d is %dx%d, expected %dx%d", i, f.Width, f.Height, w, h)
		}
	}
	if meta.Duration > 0 && meta.FrameRate > 0 {
		expected := meta.Duration.Seconds() * meta.FrameRate
		slack := math.Max(2, expected*a.t.FrameCountTolerance)
		if math.Abs(float64(len(frames))-expected) > slack {
			return fmt.Errorf("declared %.0f frames, got %d", expected, len(frames))
		}
	}
	return nil
}

// hashFrames hashes every SampleInterval-th frame.
func (a *Analyzer) hashFrames(frames []*imaging.PixelBuffer) []FrameHash {
	hashes := make([]FrameHash, 0, len(frames)/a.t.SampleInterval+1)
	for i := 0; i < len(frames); i += a.t.SampleInterval {
		hashes = append(hashes, FrameHash{
			FrameIndex: i,
			Hash:       PerceptualHash(frames[i]),
			Timestamp:  float64(i) / a.t.AssumedFrameRate,
		})
	}
	return hashes
}

// SceneBoundaries returns the positions in hashes where similarity to the
// previous sample drops below the scene threshold.
func (a *Analyzer) SceneBoundaries(hashes []FrameHash) []int {
	var out []int
	for i := 1; i < len(hashes); i++ {
		if Similarity(hashes[i-1].Hash, hashes[i].Hash) < a.t.SceneSimilarity {
			out = append(out, i)
		}
	}
	return out
}

// gopStructure treats frame 0 and every scene boundary as a keyframe. The
// structure is consistent when every keyframe gap lies within the tolerance
// of the mean gap.
func (a *Analyzer) gopStructure(hashes []FrameHash) GOPAnalysis {
	g := GOPAnalysis{KeyframeIndices: []int{0}, GOPLengths: []int{}, IsConsistent: true}
	for _, pos := range a.SceneBoundaries(hashes) {
		g.KeyframeIndices = append(g.KeyframeIndices, hashes[pos].FrameIndex)
	}
	g.SceneChanges = len(g.KeyframeIndices) - 1

	for i := 1; i < len(g.KeyframeIndices); i++ {
		g.GOPLengths = append(g.GOPLengths, g.KeyframeIndices[i]-g.KeyframeIndices[i-1])
	}
	if len(g.GOPLengths) == 0 {
		return g
	}

	sum := 0
	for _, l := range g.GOPLengths {
		sum += l
	}
	g.AverageGOPLength = float64(sum) / float64(len(g.GOPLengths))
	for _, l := range g.GOPLengths {
		if math.Abs(float64(l)-g.AverageGOPLength) > a.t.GOPTolerance*g.AverageGOPLength {
			g.IsConsistent = false
			break
		}
	}
	return g
}

// temporalConsistency scores clear continuity and clean cuts as natural and
// the ambiguous middle range as half-suspicious.
func (a *Analyzer) temporalConsistency(hashes []FrameHash) float64 {
	if len(hashes) < 2 {
		return 1
	}
	running := 0.0
	for i := 1; i < len(hashes); i++ {
		s := Similarity(hashes[i-1].Hash, hashes[i].Hash)
		if s > a.t.ContinuousSimilarity || s < a.t.CutSimilarity {
			running += 1
		} else {
			running += 0.5
		}
	}
	return running / float64(len(hashes)-1)
}

// reEncoding scans the middle frame's 8x8 block borders for blocking
// artifacts and folds in the container hints.
func (a *Analyzer) reEncoding(frame *imaging.PixelBuffer, meta Metadata) ReEncoding {
	r := ReEncoding{
		MultiplePasses:      meta.EncodingPasses > 1,
		MissingCreationDate: meta.HasEmbeddedMetadata && meta.CreationDate == nil,
	}
	lum := frame.Luminance()
	w := frame.Width
	edge := make([]float64, 0, 2*blockSize-1)
	for by := 0; by+blockSize <= frame.Height; by += blockSize {
		for bx := 0; bx+blockSize <= w; bx += blockSize {
			edge = edge[:0]
			for x := bx; x < bx+blockSize; x++ {
				edge = append(edge, lum[by*w+x])
			}
			for y := by + 1; y < by+blockSize; y++ {
				edge = append(edge, lum[y*w+bx])
			}
			if variance(edge) > a.t.EdgeVariance {
				r.BlockHits++
			}
		}
	}
	r.BlockingScore = math.Min(float64(r.BlockHits)/float64(a.t.BlockHitSaturation), 1)
	r.Score = forensics.Clamp01(weightBlocking*r.BlockingScore +
		forensics.BoolScore(r.MultiplePasses, weightMultiplePasses) +
		forensics.BoolScore(r.MissingCreationDate, weightMissingDate))
	return r
}

// detectAnomalies flags repeated content far apart in time and abrupt
// visual jumps between adjacent samples.
func (a *Analyzer) detectAnomalies(hashes []FrameHash) []Anomaly {
	anomalies := []Anomaly{}
	minGap := 2 * a.t.SampleInterval

	for j := 2; j < len(hashes); j++ {
		for i := 0; i < j-1; i++ {
			if hashes[i].Hash != hashes[j].Hash || hashes[j].FrameIndex-hashes[i].FrameIndex <= minGap {
				continue
			}
			anomalies = append(anomalies, Anomaly{
				Type:         AnomalyDuplicateFrames,
				FrameIndex:   hashes[j].FrameIndex,
				RelatedFrame: hashes[i].FrameIndex,
				Confidence:   a.t.DuplicateConfidence,
				Description:  fmt.Sprintf("frame %d repeats frame %d", hashes[j].FrameIndex, hashes[i].FrameIndex),
			})
			break
		}
	}

	for i := 1; i < len(hashes); i++ {
		s := Similarity(hashes[i-1].Hash, hashes[i].Hash)
		if s < a.t.DiscontinuitySimilarity {
			anomalies = append(anomalies, Anomaly{
				Type:         AnomalyVisualDiscontinuity,
				FrameIndex:   hashes[i].FrameIndex,
				RelatedFrame: hashes[i-1].FrameIndex,
				Confidence:   forensics.Clamp01(1 - s),
				Description:  fmt.Sprintf("similarity %.2f between frames %d and %d", s, hashes[i-1].FrameIndex, hashes[i].FrameIndex),
			})
		}
	}
	return anomalies
}

func (a *Analyzer) findings(res *Result) []forensics.Finding {
	var out []forensics.Finding
	if !res.GOP.IsConsistent {
		out = append(out, forensics.NewFinding(forensics.MediumVideo, CategoryGOPInconsistent, 0.6,
			"Scene structure is irregular",
			fmt.Sprintf("GOP lengths %v around mean %.1f", res.GOP.GOPLengths, res.GOP.AverageGOPLength)))
	}
	if res.TemporalConsistency < 1 {
		out = append(out, forensics.NewFinding(forensics.MediumVideo, CategoryTemporal, 1-res.TemporalConsistency,
			"Adjacent frames fall in the ambiguous similarity range",
			fmt.Sprintf("temporal consistency %.2f", res.TemporalConsistency)))
	}
	if res.ReEncoding.Score > 0 {
		var details []string
		if res.ReEncoding.BlockHits > 0 {
			details = append(details, fmt.Sprintf("%d blocks with edge variance above %.0f", res.ReEncoding.BlockHits, a.t.EdgeVariance))
		}
		if res.ReEncoding.MultiplePasses {
			details = append(details, "declared more than one encoding pass")
		}
		if res.ReEncoding.MissingCreationDate {
			details = append(details, "embedded metadata lacks a creation date")
		}
		out = append(out, forensics.NewFinding(forensics.MediumVideo, CategoryReEncoding, res.ReEncoding.Score,
			"Stream shows signs of re-encoding", details...))
	}

	byType := map[string][]Anomaly{}
	for _, an := range res.Anomalies {
		byType[an.Type] = append(byType[an.Type], an)
	}
	for _, typ := range []string{AnomalyDuplicateFrames, AnomalyVisualDiscontinuity} {
		group := byType[typ]
		if len(group) == 0 {
			continue
		}
		maxConf := 0.0
		details := make([]string, 0, len(group))
		for _, an := range group {
			maxConf = math.Max(maxConf, an.Confidence)
			details = append(details, an.Description)
		}
		out = append(out, forensics.NewFinding(forensics.MediumVideo, typ, maxConf,
			fmt.Sprintf("%d %s anomalies", len(group), strings.ToLower(strings.ReplaceAll(typ, "_", " "))),
			details...))
	}
	return out
}

func variance(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	sq := 0.0
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(vals))
}
