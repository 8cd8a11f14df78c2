// Package document detects PDF manipulation from file structure, metadata
// consistency, incremental-save history, hidden content and signatures.
//
// The analyzer never interprets the page content model. It treats the file
// as Latin-1 text and matches the ASCII structure of the format, so any byte
// sequence, valid PDF or not, can be analyzed without failing.
package document

import (
	"fmt"
	"math"
	"strings"
	"time"

	"verum/internal/forensics"
)

// Default thresholds. Override through Thresholds.
const (
	DefaultMaxIncrementalUpdates = 5
	DefaultMaxVersions           = 3
	DefaultHiddenCap             = 3
	DefaultIssuePenalty          = 0.2
	DefaultMaxIssuePenalty       = 0.8
	DefaultMaxInflatedBytes      = 4 << 20
	DefaultMaxStreams            = 256
)

// Score weights.
const (
	weightInvalidHeader    = 0.3
	weightJavaScript       = 0.1
	weightManyUpdates      = 0.15
	weightMetadata         = 0.2
	weightRebuilt          = 0.15
	weightManyVersions     = 0.1
	weightHidden           = 0.15
	weightInvalidSignature = 0.3
)

// Finding categories.
const (
	CategoryInvalidHeader      = "INVALID_HEADER"
	CategoryJavaScript         = "EMBEDDED_JAVASCRIPT"
	CategoryExternalLinks      = "EXTERNAL_LINKS"
	CategoryEmbeddedFiles      = "EMBEDDED_FILES"
	CategoryIncrementalUpdates = "INCREMENTAL_UPDATES"
	CategoryMetadata           = "METADATA_INCONSISTENCY"
	CategoryRebuilt            = "DOCUMENT_REBUILT"
	CategoryVersions           = "MULTIPLE_VERSIONS"
	CategoryHiddenLayers       = "HIDDEN_LAYERS"
	CategoryWhiteText          = "WHITE_TEXT"
	CategoryHiddenAnnotations  = "HIDDEN_ANNOTATIONS"
	CategoryTrailingData       = "TRAILING_DATA"
	CategoryInvalidSignature   = "SIGNATURE_INVALID"
	CategoryModifiedAfterSign  = "MODIFIED_AFTER_SIGNING"
)

// Thresholds holds the overridable constants of the document analyzer.
type Thresholds struct {
	MaxIncrementalUpdates int
	MaxVersions           int
	HiddenCap             int
	IssuePenalty          float64
	MaxIssuePenalty       float64
	MaxInflatedBytes      int64
	MaxStreams            int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxIncrementalUpdates: DefaultMaxIncrementalUpdates,
		MaxVersions:           DefaultMaxVersions,
		HiddenCap:             DefaultHiddenCap,
		IssuePenalty:          DefaultIssuePenalty,
		MaxIssuePenalty:       DefaultMaxIssuePenalty,
		MaxInflatedBytes:      DefaultMaxInflatedBytes,
		MaxStreams:            DefaultMaxStreams,
	}
}

// Result is the document analyzer output.
type Result struct {
	forensics.Verdict
	Size          int              `json:"size"`
	Structure     Structure        `json:"structure"`
	Info          Info             `json:"info"`
	Metadata      MetadataAnalysis `json:"metadata"`
	Modifications History          `json:"modifications"`
	Hidden        HiddenContent    `json:"hidden_content"`
	Signatures    Signatures       `json:"signatures"`
}

// Medium implements forensics.MediumResult.
func (*Result) Medium() forensics.Medium { return forensics.MediumDocument }

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock sets the time source used to detect future creation dates.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer runs the document pipeline with a fixed set of thresholds.
type Analyzer struct {
	t   Thresholds
	now func() time.Time
}

// New creates an analyzer. Non-positive fields fall back to defaults.
func New(t Thresholds, opts ...Option) *Analyzer {
	d := DefaultThresholds()
	if t.MaxIncrementalUpdates <= 0 {
		t.MaxIncrementalUpdates = d.MaxIncrementalUpdates
	}
	if t.MaxVersions <= 0 {
		t.MaxVersions = d.MaxVersions
	}
	if t.HiddenCap <= 0 {
		t.HiddenCap = d.HiddenCap
	}
	if t.IssuePenalty <= 0 {
		t.IssuePenalty = d.IssuePenalty
	}
	if t.MaxIssuePenalty <= 0 || t.MaxIssuePenalty > 1 {
		t.MaxIssuePenalty = d.MaxIssuePenalty
	}
	if t.MaxInflatedBytes <= 0 {
		t.MaxInflatedBytes = d.MaxInflatedBytes
	}
	if t.MaxStreams <= 0 {
		t.MaxStreams = d.MaxStreams
	}
	a := &Analyzer{t: t, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the document pipeline with default thresholds.
func Analyze(data []byte, meta Metadata) *Result {
	return New(DefaultThresholds()).Analyze(data, meta)
}

// Analyze inspects raw document bytes and declared metadata.
func (a *Analyzer) Analyze(data []byte, meta Metadata) *Result {
	if len(data) == 0 {
		return &Result{Verdict: forensics.Empty("no document bytes")}
	}

	text := latin1(data)
	eofs := eofOffsets(data)
	info := ParseInfo(text)

	res := &Result{
		Size:          len(data),
		Structure:     parseStructure(data, text, eofs),
		Info:          info,
		Metadata:      resolveMetadata(meta, info),
		Modifications: parseHistory(text, eofs),
		Hidden:        a.findHidden(data, text, eofs),
		Signatures:    checkSignatures(data, text, eofs),
	}
	a.checkMetadata(&res.Metadata)

	score, findings := a.score(res)
	res.Verdict = forensics.Analyzed(score, findings)
	return res
}

func (a *Analyzer) score(r *Result) (float64, []forensics.Finding) {
	var findings []forensics.Finding
	add := func(category string, confidence float64, description string, details ...string) {
		findings = append(findings, forensics.NewFinding(forensics.MediumDocument, category, confidence, description, details...))
	}

	s := r.Structure
	score := 0.0

	if !s.ValidHeader {
		score += weightInvalidHeader
		add(CategoryInvalidHeader, 0.7, "File does not begin with a %PDF- header")
	}
	if s.HasJavaScript {
		score += weightJavaScript
		add(CategoryJavaScript, 0.5, "Document contains JavaScript actions")
	}
	if s.HasExternalLinks {
		add(CategoryExternalLinks, 0.2, "Document references external URIs or remote documents")
	}
	if s.HasEmbeddedFiles {
		add(CategoryEmbeddedFiles, 0.3, "Document carries embedded files")
	}
	if s.IncrementalUpdates > a.t.MaxIncrementalUpdates {
		score += weightManyUpdates
		add(CategoryIncrementalUpdates, 0.5,
			fmt.Sprintf("%d incremental updates appended to the original file", s.IncrementalUpdates))
	}

	m := r.Metadata
	score += weightMetadata * (1 - m.Confidence)
	if len(m.Issues) > 0 {
		add(CategoryMetadata, 1-m.Confidence, "Document metadata is internally inconsistent", m.Issues...)
	}

	h := r.Modifications
	if h.WasRebuilt {
		score += weightRebuilt
		add(CategoryRebuilt, 0.5,
			fmt.Sprintf("%d revisions saved without object streams", h.TotalVersions),
			fmt.Sprintf("%%%%EOF offsets: %v", h.EOFOffsets))
	}
	if h.TotalVersions > a.t.MaxVersions {
		score += weightManyVersions
		add(CategoryVersions, 0.5, fmt.Sprintf("Document has %d saved versions", h.TotalVersions))
	}

	hidden := r.Hidden
	score += weightHidden * float64(min(hidden.Count(), a.t.HiddenCap))
	if len(hidden.Layers) > 0 {
		add(CategoryHiddenLayers, 0.5, "Optional content layers may hide page content",
			"layers: "+strings.Join(hidden.Layers, ", "))
	}
	if hidden.WhiteText {
		add(CategoryWhiteText, 0.6, "White fill operators may render invisible text",
			fmt.Sprintf("%d compressed content streams affected", hidden.WhiteTextStreams))
	}
	if hidden.HiddenAnnotations > 0 {
		add(CategoryHiddenAnnotations, 0.6, fmt.Sprintf("%d annotations carry the Hidden flag", hidden.HiddenAnnotations))
	}
	if hidden.TrailingBytes > 0 {
		add(CategoryTrailingData, 0.7, fmt.Sprintf("%d bytes follow the final %%%%EOF marker", hidden.TrailingBytes))
	}

	sig := r.Signatures
	if sig.Count > 0 && sig.State == SignatureInvalid {
		score += weightInvalidSignature
		add(CategoryInvalidSignature, 0.9, "Signature byte range is malformed", sig.Problems...)
	}
	if sig.ModifiedAfterSigned {
		add(CategoryModifiedAfterSign, 0.7, "Content was appended after the signed byte range")
	}

	return math.Min(score, 1), findings
}
