// Package forensics holds the value types shared by every medium analyzer,
// the fusion engine and the report printers.
package forensics

import (
	"fmt"
	"math"
)

// Medium identifies the kind of evidence an analyzer inspected.
type Medium string

const (
	MediumImage    Medium = "image"
	MediumVideo    Medium = "video"
	MediumAudio    Medium = "audio"
	MediumDocument Medium = "document"
)

// Media lists every medium in report order.
var Media = []Medium{MediumImage, MediumVideo, MediumAudio, MediumDocument}

// Severity indicates the importance level of a finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severity thresholds on finding confidence. A confidence must strictly
// exceed a threshold to reach that level.
const (
	CriticalConfidence = 0.8
	HighConfidence     = 0.6
	MediumConfidence   = 0.4
)

// SeverityFor derives a severity from a confidence value.
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence > CriticalConfidence:
		return SeverityCritical
	case confidence > HighConfidence:
		return SeverityHigh
	case confidence > MediumConfidence:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities from LOW (0) to CRITICAL (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Finding is one piece of evidence of manipulation reported by an analyzer.
type Finding struct {
	Medium            Medium   `json:"medium"`
	Category          string   `json:"category"`
	Severity          Severity `json:"severity"`
	Confidence        float64  `json:"confidence"`
	Description       string   `json:"description"`
	SupportingDetails []string `json:"supporting_details,omitempty"`
}

// NewFinding builds a finding whose confidence is clamped to [0,1] and whose
// severity follows from that confidence.
func NewFinding(medium Medium, category string, confidence float64, description string, details ...string) Finding {
	c := Clamp01(confidence)
	return Finding{
		Medium:            medium,
		Category:          category,
		Severity:          SeverityFor(c),
		Confidence:        c,
		Description:       description,
		SupportingDetails: details,
	}
}

// String renders a finding on one line.
func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s/%s (%.2f): %s", f.Severity, f.Medium, f.Category, f.Confidence, f.Description)
}

// Status records whether an analyzer actually ran over its input.
type Status string

const (
	// StatusAnalyzed means the input was well formed and fully analyzed.
	StatusAnalyzed Status = "analyzed"
	// StatusEmpty means the input held no samples, pixels or bytes.
	StatusEmpty Status = "empty"
	// StatusRejected means the input contradicted its declared metadata.
	StatusRejected Status = "rejected"
)

// TamperedThreshold is the score above which a medium is reported tampered.
const TamperedThreshold = 0.5

// Verdict is the medium-independent part of every analyzer result.
type Verdict struct {
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	TamperingScore float64   `json:"tampering_score"`
	IsTampered     bool      `json:"is_tampered"`
	Findings       []Finding `json:"findings"`
}

// Analyzed returns a verdict for a completed analysis.
func Analyzed(score float64, findings []Finding) Verdict {
	s := Clamp01(score)
	if findings == nil {
		findings = []Finding{}
	}
	return Verdict{
		Status:         StatusAnalyzed,
		TamperingScore: s,
		IsTampered:     s > TamperedThreshold,
		Findings:       findings,
	}
}

// Empty returns the all-clear verdict for an input without content.
func Empty(reason string) Verdict {
	return Verdict{Status: StatusEmpty, Reason: reason, Findings: []Finding{}}
}

// Rejected returns the all-clear verdict for an input that failed validation.
func Rejected(reason string) Verdict {
	return Verdict{Status: StatusRejected, Reason: reason, Findings: []Finding{}}
}

// Summary returns the verdict itself. Medium results embed Verdict and so
// satisfy MediumResult through this method.
func (v Verdict) Summary() Verdict { return v }

func (Verdict) mediumResult() {}

// MediumResult is the closed sum of per-medium analyzer outputs. Only types
// embedding Verdict can implement it; the fusion engine switches on Medium().
type MediumResult interface {
	Medium() Medium
	Summary() Verdict
	mediumResult()
}

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BoolScore returns weight when cond holds and 0 otherwise.
func BoolScore(cond bool, weight float64) float64 {
	if cond {
		return weight
	}
	return 0
}
