package document

import (
	"fmt"
	"regexp"
	"strconv"
)

// SignatureState is the validity of a document's signatures. Without the
// signer's certificate chain, a well-formed signature is Unknown, never Valid.
type SignatureState string

const (
	SignatureValid   SignatureState = "valid"
	SignatureInvalid SignatureState = "invalid"
	SignatureUnknown SignatureState = "unknown"
)

// ByteRange is the signed region of a signature: [Offset1, Offset1+Length1)
// and [Offset2, Offset2+Length2).
type ByteRange struct {
	Offset1 int `json:"offset1"`
	Length1 int `json:"length1"`
	Offset2 int `json:"offset2"`
	Length2 int `json:"length2"`
}

// End is the first byte after the signed region.
func (r ByteRange) End() int { return r.Offset2 + r.Length2 }

// Signatures summarizes signature dictionaries found in the file.
type Signatures struct {
	Count               int            `json:"count"`
	SubFilters          []string       `json:"sub_filters"`
	ByteRanges          []ByteRange    `json:"byte_ranges"`
	State               SignatureState `json:"state"`
	Problems            []string       `json:"problems"`
	ModifiedAfterSigned bool           `json:"modified_after_signing"`
}

// maxByteRangeBytes bounds how much text after a /ByteRange key is parsed.
const maxByteRangeBytes = 256

var (
	sigType      = regexp.MustCompile(`/Type\s*/Sig\b`)
	subFilter    = regexp.MustCompile(`/SubFilter\s*/([A-Za-z0-9._\-]+)`)
	byteRangeKey = regexp.MustCompile(`/ByteRange\b`)
	byteRange    = regexp.MustCompile(`^/ByteRange\s*\[\s*(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s*\]`)
)

func checkSignatures(data []byte, text string, eofs []int) Signatures {
	s := Signatures{
		Count:      len(sigType.FindAllStringIndex(text, -1)),
		SubFilters: []string{},
		ByteRanges: []ByteRange{},
		Problems:   []string{},
	}
	for _, m := range subFilter.FindAllStringSubmatch(text, -1) {
		s.SubFilters = append(s.SubFilters, m[1])
	}
	if s.Count == 0 {
		s.State = SignatureValid
		return s
	}

	lastRevisionEnd := len(data)
	if len(eofs) > 0 {
		lastRevisionEnd = eofs[len(eofs)-1] + len(eofMarker)
	}

	invalid := false
	for _, loc := range byteRangeKey.FindAllStringIndex(text, -1) {
		m := byteRange.FindStringSubmatch(text[loc[0]:min(loc[0]+maxByteRangeBytes, len(text))])
		if m == nil {
			invalid = true
			s.Problems = append(s.Problems, "malformed /ByteRange")
			continue
		}
		var v [4]int
		ok := true
		for i := range v {
			n, err := strconv.Atoi(m[i+1])
			if err != nil || n > len(data) {
				ok = false
				break
			}
			v[i] = n
		}
		r := ByteRange{Offset1: v[0], Length1: v[1], Offset2: v[2], Length2: v[3]}
		if !ok || r.Offset1+r.Length1 > r.Offset2 || r.End() > len(data) {
			invalid = true
			s.Problems = append(s.Problems, fmt.Sprintf("/ByteRange %v lies outside the file", v))
			continue
		}
		s.ByteRanges = append(s.ByteRanges, r)
		if r.End() < lastRevisionEnd {
			s.ModifiedAfterSigned = true
		}
	}

	if invalid {
		s.State = SignatureInvalid
	} else {
		s.State = SignatureUnknown
	}
	return s
}
