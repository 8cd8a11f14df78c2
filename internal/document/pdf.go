package document

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// latin1 decodes PDF bytes as ISO-8859-1 so every byte maps to exactly one
// rune and structural patterns can be matched on text.
func latin1(data []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		// ISO-8859-1 defines all 256 bytes; fall back to a byte-wise copy anyway.
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return string(runes)
	}
	return string(out)
}

// Info is the document information dictionary embedded in the file.
type Info struct {
	Title        string     `json:"title,omitempty"`
	Author       string     `json:"author,omitempty"`
	Subject      string     `json:"subject,omitempty"`
	Keywords     string     `json:"keywords,omitempty"`
	Creator      string     `json:"creator,omitempty"`
	Producer     string     `json:"producer,omitempty"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
	ModDate      *time.Time `json:"mod_date,omitempty"`
}

var infoKey = regexp.MustCompile(`/(Title|Author|Subject|Keywords|Creator|Producer|CreationDate|ModDate)\s*\(`)

// ParseInfo extracts literal-string entries of the information dictionary.
// Later occurrences win, so the newest incremental update is reported.
func ParseInfo(text string) Info {
	var info Info
	next := 0
	for _, m := range infoKey.FindAllStringSubmatchIndex(text, -1) {
		open := m[1] - 1
		if open < next {
			continue
		}
		key := text[m[2]:m[3]]
		val, n, ok := literalString(text[open:])
		next = open + n
		if !ok {
			continue
		}
		switch key {
		case "Title":
			info.Title = val
		case "Author":
			info.Author = val
		case "Subject":
			info.Subject = val
		case "Keywords":
			info.Keywords = val
		case "Creator":
			info.Creator = val
		case "Producer":
			info.Producer = val
		case "CreationDate":
			if t, ok := ParseDate(val); ok {
				info.CreationDate = &t
			}
		case "ModDate":
			if t, ok := ParseDate(val); ok {
				info.ModDate = &t
			}
		}
	}
	return info
}

// maxLiteralBytes bounds the scan for a literal string's closing parenthesis.
const maxLiteralBytes = 64 << 10

// literalString reads a PDF literal string starting at the opening
// parenthesis, honoring nesting and backslash escapes. It also returns the
// number of bytes scanned: the whole string when terminated, otherwise the
// bounded prefix that was read as string content.
func literalString(s string) (string, int, bool) {
	if s == "" || s[0] != '(' {
		return "", 0, false
	}
	if len(s) > maxLiteralBytes {
		s = s[:maxLiteralBytes]
	}
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return "", len(s), false
			}
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '\r', '\n':
			default:
				if s[i] >= '0' && s[i] <= '7' {
					j := i
					for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
						j++
					}
					v, _ := strconv.ParseUint(s[i:j], 8, 8)
					sb.WriteRune(rune(v))
					i = j - 1
					continue
				}
				sb.WriteByte(s[i])
			}
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1, true
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return "", len(s), false
}

var pdfDate = regexp.MustCompile(`^(?:D:)?(\d{4})(\d{2})?(\d{2})?(\d{2})?(\d{2})?(\d{2})?([Zz+\-])?(\d{2})?'?(\d{2})?'?`)

// ParseDate parses a PDF date string of the form D:YYYYMMDDHHmmSSOHH'mm'.
// Every component after the year is optional; a missing offset means UTC.
func ParseDate(s string) (time.Time, bool) {
	m := pdfDate.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	num := func(v string, def int) int {
		if v == "" {
			return def
		}
		n, _ := strconv.Atoi(v)
		return n
	}
	year := num(m[1], 0)
	month := num(m[2], 1)
	day := num(m[3], 1)
	hour, minute, sec := num(m[4], 0), num(m[5], 0), num(m[6], 0)
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}

	loc := time.UTC
	if sign := m[7]; sign == "+" || sign == "-" {
		offset := num(m[8], 0)*3600 + num(m[9], 0)*60
		if sign == "-" {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}
	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, loc), true
}
