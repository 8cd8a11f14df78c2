// Package fusion combines per-medium analyzer results into a single
// manipulation verdict with cross-modal consistency checks, a likelihood
// classification and recommendations.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"verum/internal/forensics"
)

// Likelihood is the overall manipulation classification.
type Likelihood string

const (
	LikelihoodVeryLow  Likelihood = "VERY_LOW"
	LikelihoodLow      Likelihood = "LOW"
	LikelihoodMedium   Likelihood = "MEDIUM"
	LikelihoodHigh     Likelihood = "HIGH"
	LikelihoodVeryHigh Likelihood = "VERY_HIGH"
)

// Default thresholds. Override through Thresholds.
const (
	DefaultWeight              = 1.0
	DefaultVarianceLimit       = 0.1
	DefaultDiscrepancyMargin   = 0.2
	DefaultInconsistencyBoost  = 0.1
	DefaultHighScore           = 0.6
	DefaultLowScore            = 0.3
	DefaultVeryHighScore       = 0.8
	DefaultHighLikelihood      = 0.6
	DefaultMediumLikelihood    = 0.4
	DefaultLowLikelihood       = 0.2
	DefaultCriticalForVeryHigh = 2
	DefaultHighForHigh         = 3
)

// CategoryCrossModal marks findings raised by the consistency check.
const CategoryCrossModal = "CROSS_MODAL_DISCREPANCY"

// Fused lists the media that take part in the weighted verdict. Documents
// have no cross-modal counterpart and are reported separately.
var Fused = []forensics.Medium{forensics.MediumImage, forensics.MediumVideo, forensics.MediumAudio}

// Weights maps a medium to its non-negative fusion weight. Missing media
// weigh DefaultWeight.
type Weights map[forensics.Medium]float64

func (w Weights) of(m forensics.Medium) float64 {
	v, ok := w[m]
	if !ok {
		return DefaultWeight
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// Thresholds holds the overridable constants of the fusion engine.
type Thresholds struct {
	VarianceLimit      float64
	DiscrepancyMargin  float64
	InconsistencyBoost float64
	HighScore          float64
	LowScore           float64

	// Likelihood cut-offs: a fused score strictly above one of these, or
	// enough findings of a severity, selects the band.
	VeryHighScore       float64
	HighLikelihood      float64
	MediumLikelihood    float64
	LowLikelihood       float64
	CriticalForVeryHigh int
	HighForHigh         int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VarianceLimit:      DefaultVarianceLimit,
		DiscrepancyMargin:  DefaultDiscrepancyMargin,
		InconsistencyBoost: DefaultInconsistencyBoost,
		HighScore:          DefaultHighScore,
		LowScore:           DefaultLowScore,

		VeryHighScore:       DefaultVeryHighScore,
		HighLikelihood:      DefaultHighLikelihood,
		MediumLikelihood:    DefaultMediumLikelihood,
		LowLikelihood:       DefaultLowLikelihood,
		CriticalForVeryHigh: DefaultCriticalForVeryHigh,
		HighForHigh:         DefaultHighForHigh,
	}
}

// Discrepancy is one modality that disagrees with the others.
type Discrepancy struct {
	Medium      forensics.Medium `json:"medium"`
	Score       float64          `json:"score"`
	Description string           `json:"description"`
}

// Consistency is the cross-modal agreement of the fused scores.
type Consistency struct {
	Score         float64       `json:"score"`
	Variance      float64       `json:"variance"`
	IsConsistent  bool          `json:"is_consistent"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// DocumentSummary is the separately reported document verdict.
type DocumentSummary struct {
	Score      float64             `json:"score"`
	IsTampered bool                `json:"is_tampered"`
	Status     forensics.Status    `json:"status"`
	Findings   []forensics.Finding `json:"findings"`
}

// Result is the fused verdict.
type Result struct {
	OverallScore          float64                      `json:"overall_score"`
	MediumScores          map[forensics.Medium]float64 `json:"per_medium_scores"`
	CrossModalConsistency Consistency                  `json:"cross_modal_consistency"`
	Likelihood            Likelihood                   `json:"manipulation_likelihood"`
	Findings              []forensics.Finding          `json:"findings"`
	Recommendations       []string                     `json:"recommendations"`
	Document              *DocumentSummary             `json:"document,omitempty"`
}

// Engine fuses analyzer results with a fixed set of thresholds.
type Engine struct {
	t Thresholds
}

// New creates an engine. Non-positive fields fall back to defaults.
func New(t Thresholds) *Engine {
	d := DefaultThresholds()
	if t.VarianceLimit <= 0 {
		t.VarianceLimit = d.VarianceLimit
	}
	if t.DiscrepancyMargin <= 0 {
		t.DiscrepancyMargin = d.DiscrepancyMargin
	}
	if t.InconsistencyBoost <= 0 {
		t.InconsistencyBoost = d.InconsistencyBoost
	}
	if t.HighScore <= 0 {
		t.HighScore = d.HighScore
	}
	if t.LowScore <= 0 {
		t.LowScore = d.LowScore
	}
	if t.VeryHighScore <= 0 {
		t.VeryHighScore = d.VeryHighScore
	}
	if t.HighLikelihood <= 0 {
		t.HighLikelihood = d.HighLikelihood
	}
	if t.MediumLikelihood <= 0 {
		t.MediumLikelihood = d.MediumLikelihood
	}
	if t.LowLikelihood <= 0 {
		t.LowLikelihood = d.LowLikelihood
	}
	if t.CriticalForVeryHigh <= 0 {
		t.CriticalForVeryHigh = d.CriticalForVeryHigh
	}
	if t.HighForHigh <= 0 {
		t.HighForHigh = d.HighForHigh
	}
	return &Engine{t: t}
}

// Fuse combines results with default thresholds.
func Fuse(results map[forensics.Medium]forensics.MediumResult, weights Weights) *Result {
	return New(DefaultThresholds()).Fuse(results, weights)
}

type active struct {
	medium forensics.Medium
	score  float64
	weight float64
}

// Fuse combines any subset of analyzer results. Entries that are nil, keyed
// under the wrong medium, or not fully analyzed are ignored.
func (e *Engine) Fuse(results map[forensics.Medium]forensics.MediumResult, weights Weights) *Result {
	res := &Result{
		MediumScores: map[forensics.Medium]float64{},
		Findings:     []forensics.Finding{},
	}

	var act []active
	contributed := map[forensics.Medium]bool{}
	for _, m := range Fused {
		r, ok := results[m]
		if !ok || r == nil || r.Medium() != m {
			continue
		}
		v := r.Summary()
		if v.Status != forensics.StatusAnalyzed {
			continue
		}
		act = append(act, active{medium: m, score: forensics.Clamp01(v.TamperingScore), weight: weights.of(m)})
		res.MediumScores[m] = forensics.Clamp01(v.TamperingScore)
		res.Findings = append(res.Findings, v.Findings...)
		if len(v.Findings) > 0 {
			contributed[m] = true
		}
	}

	if r, ok := results[forensics.MediumDocument]; ok && r != nil && r.Medium() == forensics.MediumDocument {
		v := r.Summary()
		res.Document = &DocumentSummary{
			Score:      v.TamperingScore,
			IsTampered: v.IsTampered,
			Status:     v.Status,
			Findings:   v.Findings,
		}
	}

	fused := weightedMean(act)
	res.CrossModalConsistency = e.consistency(act)
	if !res.CrossModalConsistency.IsConsistent {
		fused = math.Min(fused+e.t.InconsistencyBoost, 1)
		for _, d := range res.CrossModalConsistency.Discrepancies {
			res.Findings = append(res.Findings, forensics.NewFinding(d.Medium, CategoryCrossModal,
				1-res.CrossModalConsistency.Score, d.Description,
				fmt.Sprintf("score variance %.3f across %d media", res.CrossModalConsistency.Variance, len(act))))
		}
	}
	res.OverallScore = forensics.Clamp01(fused)
	res.Likelihood = e.Classify(res.OverallScore, res.Findings)
	res.Recommendations = Recommend(res.Likelihood, contributed, res.CrossModalConsistency.IsConsistent, res.Document)
	return res
}

// weightedMean averages scores with weights renormalized to the active set.
// If every weight is zero the plain mean is used.
func weightedMean(act []active) float64 {
	if len(act) == 0 {
		return 0
	}
	var sum, total, plain float64
	for _, a := range act {
		sum += a.score * a.weight
		total += a.weight
		plain += a.score
	}
	if total == 0 {
		return plain / float64(len(act))
	}
	return sum / total
}

func (e *Engine) consistency(act []active) Consistency {
	c := Consistency{Score: 1, IsConsistent: true, Discrepancies: []Discrepancy{}}
	if len(act) < 2 {
		return c
	}

	mean := 0.0
	for _, a := range act {
		mean += a.score
	}
	mean /= float64(len(act))
	for _, a := range act {
		d := a.score - mean
		c.Variance += d * d
	}
	c.Variance /= float64(len(act))
	c.Score = 1 - math.Min(math.Sqrt(c.Variance), 0.5)*2

	if c.Variance <= e.t.VarianceLimit {
		return c
	}
	c.IsConsistent = false

	scores := map[forensics.Medium]float64{}
	for _, a := range act {
		scores[a.medium] = a.score
		if a.score > mean+e.t.DiscrepancyMargin {
			c.Discrepancies = append(c.Discrepancies, Discrepancy{
				Medium:      a.medium,
				Score:       a.score,
				Description: fmt.Sprintf("%s score %.2f is well above the cross-modal mean %.2f", a.medium, a.score, mean),
			})
		}
	}

	v, hasVideo := scores[forensics.MediumVideo]
	au, hasAudio := scores[forensics.MediumAudio]
	if hasVideo && hasAudio {
		switch {
		case v >= e.t.HighScore && au <= e.t.LowScore:
			c.Discrepancies = append(c.Discrepancies, Discrepancy{
				Medium:      forensics.MediumVideo,
				Score:       v,
				Description: "Video shows manipulation while audio does not: possible video-only edit",
			})
		case au >= e.t.HighScore && v <= e.t.LowScore:
			c.Discrepancies = append(c.Discrepancies, Discrepancy{
				Medium:      forensics.MediumAudio,
				Score:       au,
				Description: "Audio shows manipulation while video does not: possible audio replacement",
			})
		}
	}
	return c
}

// Classify maps a fused score and the finding severities to a likelihood
// using the default cut-offs.
func Classify(score float64, findings []forensics.Finding) Likelihood {
	return New(DefaultThresholds()).Classify(score, findings)
}

// Classify maps a fused score and the finding severities to a likelihood.
func (e *Engine) Classify(score float64, findings []forensics.Finding) Likelihood {
	var critical, high int
	for _, f := range findings {
		switch f.Severity {
		case forensics.SeverityCritical:
			critical++
		case forensics.SeverityHigh:
			high++
		}
	}
	switch {
	case score > e.t.VeryHighScore || critical >= e.t.CriticalForVeryHigh:
		return LikelihoodVeryHigh
	case score > e.t.HighLikelihood || critical >= 1 || high >= e.t.HighForHigh:
		return LikelihoodHigh
	case score > e.t.MediumLikelihood || high >= 1:
		return LikelihoodMedium
	case score > e.t.LowLikelihood || len(findings) > 0:
		return LikelihoodLow
	default:
		return LikelihoodVeryLow
	}
}

var likelihoodAdvice = map[Likelihood][]string{
	LikelihoodVeryHigh: {
		"Treat the evidence as manipulated until an independent examiner confirms otherwise",
		"Preserve the original file and its integrity seal before any further handling",
	},
	LikelihoodHigh: {
		"Refer the evidence for expert forensic review before relying on it",
		"Request the original capture device or source file for comparison",
	},
	LikelihoodMedium: {
		"Corroborate the evidence with independent sources",
	},
	LikelihoodLow: {
		"Minor irregularities found; document them alongside the evidence",
	},
	LikelihoodVeryLow: {
		"No indicators of manipulation found",
	},
}

var mediumAdvice = map[forensics.Medium]string{
	forensics.MediumImage: "Compare the image against other captures of the same scene and check the camera's original file",
	forensics.MediumVideo: "Inspect the flagged frame ranges for splices and obtain the recording system's export log",
	forensics.MediumAudio: "Have the flagged audio segments reviewed for splicing and compare against a reference recording",
}

// Recommend returns the deterministic advice for a classification.
func Recommend(l Likelihood, contributed map[forensics.Medium]bool, consistent bool, doc *DocumentSummary) []string {
	out := append([]string{}, likelihoodAdvice[l]...)

	media := make([]string, 0, len(contributed))
	for m, ok := range contributed {
		if ok {
			media = append(media, string(m))
		}
	}
	sort.Strings(media)
	for _, m := range media {
		out = append(out, mediumAdvice[forensics.Medium(m)])
	}

	if !consistent {
		out = append(out, "Media disagree with each other; examine whether one channel was replaced or edited separately")
	}
	if doc != nil && doc.IsTampered {
		out = append(out, "Document shows signs of modification; request the originally issued copy")
	}
	return out
}
