package fusion

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"verum/internal/forensics"
)

const reportWidth = 72

// PrintReport writes a formatted fusion verdict to w.
func PrintReport(w io.Writer, r *Result) {
	if r == nil {
		fmt.Fprintln(w, "No analysis results available")
		return
	}

	// Header
	fmt.Fprintln(w, strings.Repeat("=", reportWidth))
	fmt.Fprintln(w, "                    FORENSIC INTEGRITY ANALYSIS")
	fmt.Fprintln(w, strings.Repeat("=", reportWidth))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Overall Score:            %.3f  %s\n", r.OverallScore, FormatMetricBar(r.OverallScore, 0, 1, 20))
	fmt.Fprintf(w, "Likelihood:               %s\n", r.Likelihood)
	fmt.Fprintf(w, "Cross-Modal Consistency:  %.3f  %s\n",
		r.CrossModalConsistency.Score, FormatMetricBar(r.CrossModalConsistency.Score, 0, 1, 20))
	fmt.Fprintln(w)

	// Per-medium scores
	fmt.Fprintln(w, strings.Repeat("-", reportWidth))
	fmt.Fprintln(w, "MEDIA")
	fmt.Fprintln(w, strings.Repeat("-", reportWidth))
	fmt.Fprintln(w)
	if len(r.MediumScores) == 0 {
		fmt.Fprintln(w, "No media analyzed")
	}
	for _, m := range Fused {
		score, ok := r.MediumScores[m]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-10s %.3f  %s\n", strings.ToUpper(string(m)), score, FormatMetricBar(score, 0, 1, 20))
	}
	if r.Document != nil {
		fmt.Fprintf(w, "%-10s %.3f  %s  (reported separately, %s)\n", "DOCUMENT",
			r.Document.Score, FormatMetricBar(r.Document.Score, 0, 1, 20), r.Document.Status)
	}
	fmt.Fprintln(w)

	for _, d := range r.CrossModalConsistency.Discrepancies {
		fmt.Fprintf(w, "  -> %s\n", d.Description)
	}

	findings := append([]forensics.Finding{}, r.Findings...)
	if r.Document != nil {
		findings = append(findings, r.Document.Findings...)
	}
	if len(findings) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", reportWidth))
		fmt.Fprintln(w, "FINDINGS")
		fmt.Fprintln(w, strings.Repeat("-", reportWidth))
		fmt.Fprintln(w)

		for i, f := range findings {
			fmt.Fprintf(w, "%d. [%s] %s/%s: %s\n", i+1, severityMarker(f.Severity), f.Medium, f.Category, f.Description)
			fmt.Fprintf(w, "   Confidence: %.2f (%s)\n", f.Confidence, f.Severity)
			for _, d := range f.SupportingDetails {
				fmt.Fprintf(w, "   %s\n", d)
			}
		}
		fmt.Fprintln(w)
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", reportWidth))
		fmt.Fprintln(w, "RECOMMENDATIONS")
		fmt.Fprintln(w, strings.Repeat("-", reportWidth))
		fmt.Fprintln(w)
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "* %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	// Assessment
	fmt.Fprintln(w, strings.Repeat("=", reportWidth))
	fmt.Fprintf(w, "ASSESSMENT: %s\n", r.Likelihood)
	fmt.Fprintln(w, strings.Repeat("=", reportWidth))
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// FormatMetricBar produces ASCII progress bar for metric visualization.
func FormatMetricBar(value, min, max float64, width int) string {
	if width <= 0 {
		return ""
	}
	if max <= min {
		return strings.Repeat("-", width)
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	filled := int(normalized * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// severityMarker returns a visual marker for severity levels.
func severityMarker(s forensics.Severity) string {
	switch s {
	case forensics.SeverityCritical:
		return "!!!"
	case forensics.SeverityHigh:
		return " !!"
	case forensics.SeverityMedium:
		return " ! "
	default:
		return " i "
	}
}
