package document

import (
	"strings"
	"time"
)

// Metadata is the declared description of a document. Empty fields are
// filled from the embedded information dictionary.
type Metadata struct {
	Title            string
	Author           string
	Subject          string
	Creator          string
	Producer         string
	Keywords         string
	CreationDate     *time.Time
	ModificationDate *time.Time
}

// MetadataAnalysis reports the consistency of the resolved metadata.
type MetadataAnalysis struct {
	Creator          string     `json:"creator,omitempty"`
	Producer         string     `json:"producer,omitempty"`
	CreationDate     *time.Time `json:"creation_date,omitempty"`
	ModificationDate *time.Time `json:"modification_date,omitempty"`
	Issues           []string   `json:"issues"`
	Confidence       float64    `json:"confidence"`
}

// SoftwareFamilies maps a family name to lower-case producer markers.
var SoftwareFamilies = map[string][]string{
	"Adobe":       {"adobe", "acrobat", "distiller", "pdfmaker", "indesign", "illustrator"},
	"Microsoft":   {"microsoft", "word", "excel", "powerpoint"},
	"LibreOffice": {"libreoffice", "openoffice"},
	"PDFlib":      {"pdflib"},
}

var familyOrder = []string{"Adobe", "Microsoft", "LibreOffice", "PDFlib"}

// SoftwareFamily returns the known family of a producer string, or "".
func SoftwareFamily(software string) string {
	s := strings.ToLower(software)
	if s == "" {
		return ""
	}
	for _, family := range familyOrder {
		for _, marker := range SoftwareFamilies[family] {
			if strings.Contains(s, marker) {
				return family
			}
		}
	}
	return ""
}

func resolveMetadata(declared Metadata, info Info) MetadataAnalysis {
	m := MetadataAnalysis{
		Creator:          firstNonEmpty(declared.Creator, info.Creator),
		Producer:         firstNonEmpty(declared.Producer, info.Producer),
		CreationDate:     declared.CreationDate,
		ModificationDate: declared.ModificationDate,
		Issues:           []string{},
	}
	if m.CreationDate == nil {
		m.CreationDate = info.CreationDate
	}
	if m.ModificationDate == nil {
		m.ModificationDate = info.ModDate
	}
	return m
}

func (a *Analyzer) checkMetadata(m *MetadataAnalysis) {
	created, modified := m.CreationDate, m.ModificationDate
	if created != nil && modified != nil && modified.Before(*created) {
		m.Issues = append(m.Issues, "modification date precedes creation date")
	}

	cf, pf := SoftwareFamily(m.Creator), SoftwareFamily(m.Producer)
	if cf != "" && pf != "" && cf != pf {
		m.Issues = append(m.Issues, "re-saved by different tool: created with "+cf+", produced by "+pf)
	}

	if created == nil && modified != nil {
		m.Issues = append(m.Issues, "modification date present without creation date")
	}
	if created != nil && created.After(a.now()) {
		m.Issues = append(m.Issues, "creation date is in the future")
	}

	penalty := float64(len(m.Issues)) * a.t.IssuePenalty
	if penalty > a.t.MaxIssuePenalty {
		penalty = a.t.MaxIssuePenalty
	}
	m.Confidence = 1 - penalty
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
