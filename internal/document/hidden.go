package document

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strconv"
)

// HiddenContent lists content a reader would not see on the rendered page.
type HiddenContent struct {
	Layers            []string `json:"layers"`
	WhiteText         bool     `json:"white_text"`
	WhiteTextStreams  int      `json:"white_text_streams"`
	HiddenAnnotations int      `json:"hidden_annotations"`
	TrailingBytes     int      `json:"trailing_bytes"`
}

// Count is the number of distinct hidden-content findings.
func (h HiddenContent) Count() int {
	n := len(h.Layers) + h.HiddenAnnotations
	if h.WhiteText {
		n++
	}
	if h.TrailingBytes > 0 {
		n++
	}
	return n
}

// annotHidden is the Hidden bit of an annotation's /F flags.
const annotHidden = 1 << 1

var (
	optionalContent = regexp.MustCompile(`/OCProperties\b|/OC\b`)
	layerName       = regexp.MustCompile(`/Name\s*\(`)
	whiteFill       = regexp.MustCompile(`(?:^|[\s\]])1\s+1\s+1\s+rg\b|(?:^|\s)1\s+g\b`)
	objectBody      = regexp.MustCompile(`(?s)\d+\s+\d+\s+obj(.*?)endobj`)
	annotType       = regexp.MustCompile(`/Type\s*/Annot\b`)
	annotFlags      = regexp.MustCompile(`/F\s+(\d+)`)
	flateStream     = regexp.MustCompile(`(?s)<<((?:[^<>]|<<[^<>]*>>)*?/FlateDecode(?:[^<>]|<<[^<>]*>>)*?)>>\s*stream\r?\n`)
)

func (a *Analyzer) findHidden(data []byte, text string, eofs []int) HiddenContent {
	h := HiddenContent{Layers: []string{}}

	if optionalContent.MatchString(text) {
		next := 0
		for _, m := range layerName.FindAllStringIndex(text, -1) {
			open := m[1] - 1
			if open < next {
				continue
			}
			name, n, ok := literalString(text[open:])
			next = open + n
			if ok {
				h.Layers = append(h.Layers, name)
			}
		}
	}

	h.WhiteText = whiteFill.MatchString(text)
	h.WhiteTextStreams = a.scanFlateStreams(data)
	if h.WhiteTextStreams > 0 {
		h.WhiteText = true
	}

	for _, m := range objectBody.FindAllStringSubmatch(text, -1) {
		body := m[1]
		if !annotType.MatchString(body) {
			continue
		}
		if f := annotFlags.FindStringSubmatch(body); f != nil {
			if flags, err := strconv.Atoi(f[1]); err == nil && flags&annotHidden != 0 {
				h.HiddenAnnotations++
			}
		}
	}

	if len(eofs) > 0 {
		for _, b := range data[eofs[len(eofs)-1]+len(eofMarker):] {
			if !isPDFWhitespace(b) {
				h.TrailingBytes++
			}
		}
	}
	return h
}

// scanFlateStreams inflates FlateDecode streams, each capped at
// MaxInflatedBytes, and counts those containing white fill operators.
func (a *Analyzer) scanFlateStreams(data []byte) int {
	found := 0
	scanned := 0
	for _, m := range flateStream.FindAllIndex(data, -1) {
		if scanned >= a.t.MaxStreams {
			break
		}
		scanned++
		start := m[1]
		end := bytes.Index(data[start:], []byte("endstream"))
		if end < 0 {
			continue
		}
		zr, err := zlib.NewReader(bytes.NewReader(data[start : start+end]))
		if err != nil {
			continue
		}
		plain, _ := io.ReadAll(io.LimitReader(zr, a.t.MaxInflatedBytes))
		_ = zr.Close()
		if whiteFill.Match(plain) {
			found++
		}
	}
	return found
}

func isPDFWhitespace(b byte) bool {
	switch b {
	case 0x00, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}
