package seal

import (
	"fmt"
	"strings"
)

// Watermark is printed at the foot of every forensic footer.
const Watermark = "VERUM OMNIS FORENSIC SEAL - TAMPER EVIDENT - VERIFY BEFORE RELYING"

const footerRule = "----------------------------------------------------------------"

// Footer renders the fixed-layout block a report generator appends for
// manual verification. Identical seals produce identical bytes.
func Footer(s *Seal) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(footerRule + "\n")
	fmt.Fprintf(&b, "Case:      %s\n", s.CaseLabel)
	fmt.Fprintf(&b, "Content:   SHA512-%s\n", s.ContentHash)
	fmt.Fprintf(&b, "Sealed:    %s\n", FormatTimestamp(s.Timestamp))
	fmt.Fprintf(&b, "Device:    %s\n", s.Device)
	fmt.Fprintf(&b, "Algorithm: v%s\n", s.AlgorithmVersion)
	b.WriteString(footerRule + "\n")
	b.WriteString(Watermark + "\n")
	return b.String()
}
