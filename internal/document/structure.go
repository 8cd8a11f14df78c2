package document

import (
	"bytes"
	"regexp"
	"strings"
)

// XRefStyle identifies how the file's cross-reference data is stored.
type XRefStyle string

const (
	XRefNone   XRefStyle = "none"
	XRefTable  XRefStyle = "table"
	XRefStream XRefStyle = "stream"
	XRefHybrid XRefStyle = "hybrid"
)

// Structure is the result of structural parsing.
type Structure struct {
	ValidHeader        bool      `json:"valid_header"`
	Version            string    `json:"version,omitempty"`
	ObjectCount        int       `json:"object_count"`
	IncrementalUpdates int       `json:"incremental_updates"`
	HasJavaScript      bool      `json:"has_javascript"`
	HasExternalLinks   bool      `json:"has_external_links"`
	HasEmbeddedFiles   bool      `json:"has_embedded_files"`
	XRef               XRefStyle `json:"xref_style"`
}

// Version is one incremental-save revision, ending at a %%EOF marker.
type Version struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// History is the modification history reconstructed from %%EOF markers.
type History struct {
	EOFOffsets       []int     `json:"eof_offsets"`
	Versions         []Version `json:"versions"`
	TotalVersions    int       `json:"total_versions"`
	HasObjectStreams bool      `json:"has_object_streams"`
	IsLinearized     bool      `json:"is_linearized"`
	WasRebuilt       bool      `json:"was_rebuilt"`
}

var (
	headerVersion = regexp.MustCompile(`^%PDF-(\d+\.\d+)`)
	objectMarker  = regexp.MustCompile(`\d+\s\d+\sobj\b`)
	javaScript    = regexp.MustCompile(`/JavaScript\b|/JS\b`)
	externalLink  = regexp.MustCompile(`/URI\b|/GoToR\b`)
	xrefTable     = regexp.MustCompile(`(?m)(?:^|\s)xref\s`)
	xrefStream    = regexp.MustCompile(`/Type\s*/XRef\b`)
)

var eofMarker = []byte("%%EOF")

func eofOffsets(data []byte) []int {
	offsets := []int{}
	for i := 0; ; {
		j := bytes.Index(data[i:], eofMarker)
		if j < 0 {
			return offsets
		}
		offsets = append(offsets, i+j)
		i += j + len(eofMarker)
	}
}

func parseStructure(data []byte, text string, eofs []int) Structure {
	s := Structure{
		ValidHeader:      bytes.HasPrefix(data, []byte("%PDF-")),
		ObjectCount:      len(objectMarker.FindAllStringIndex(text, -1)),
		HasJavaScript:    javaScript.MatchString(text),
		HasExternalLinks: externalLink.MatchString(text),
		HasEmbeddedFiles: strings.Contains(text, "/EmbeddedFile"),
	}
	if m := headerVersion.FindStringSubmatch(text); m != nil {
		s.Version = m[1]
	}
	if len(eofs) > 1 {
		s.IncrementalUpdates = len(eofs) - 1
	}

	table, stream := xrefTable.MatchString(text), xrefStream.MatchString(text)
	switch {
	case table && stream:
		s.XRef = XRefHybrid
	case stream:
		s.XRef = XRefStream
	case table:
		s.XRef = XRefTable
	default:
		s.XRef = XRefNone
	}
	return s
}

func parseHistory(text string, eofs []int) History {
	h := History{
		EOFOffsets:       eofs,
		Versions:         make([]Version, 0, len(eofs)),
		TotalVersions:    len(eofs),
		HasObjectStreams: strings.Contains(text, "/ObjStm"),
		IsLinearized:     strings.Contains(text, "/Linearized"),
	}
	start := 0
	for i, off := range eofs {
		end := off + len(eofMarker)
		h.Versions = append(h.Versions, Version{Index: i + 1, Start: start, End: end})
		start = end
	}
	h.WasRebuilt = h.TotalVersions > 1 && !h.HasObjectStreams
	return h
}
