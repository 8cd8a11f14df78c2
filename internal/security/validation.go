package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation errors
var (
	ErrInvalidInput      = errors.New("security: invalid input")
	ErrInputTooLong      = errors.New("security: input exceeds maximum length")
	ErrNullByte          = errors.New("security: null byte in input")
	ErrInvalidUTF8       = errors.New("security: invalid UTF-8 encoding")
	ErrControlCharacters = errors.New("security: control characters in input")
)

// MaxLabelLength bounds case labels and metadata values.
const MaxLabelLength = 1024

// ValidateLabel checks a caller-supplied label such as a case label or a
// metadata key: bounded, valid UTF-8, no control characters.
func ValidateLabel(s string) error {
	if len(s) > MaxLabelLength {
		return fmt.Errorf("%w: length %d exceeds maximum %d", ErrInputTooLong, len(s), MaxLabelLength)
	}
	if strings.Contains(s, "\x00") {
		return ErrNullByte
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return ErrControlCharacters
		}
	}
	return nil
}

// ValidateFilename validates an uploaded file name (not a path).
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty filename", ErrInvalidInput)
	}
	if err := ValidateLabel(name); err != nil {
		return err
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: filename contains path separator", ErrInvalidInput)
	}

	reserved := []string{"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}
	upper := strings.ToUpper(name)
	base := strings.TrimSuffix(upper, filepath.Ext(upper))
	for _, r := range reserved {
		if base == r {
			return fmt.Errorf("%w: reserved filename", ErrInvalidInput)
		}
	}

	if strings.ContainsAny(name, `<>:"|?*`) {
		return fmt.Errorf("%w: invalid characters in filename", ErrInvalidInput)
	}
	return nil
}

// ValidateHexString checks that s is lowercase hexadecimal of length
// expectedLen, the form every digest in a seal uses.
func ValidateHexString(s string, expectedLen int) error {
	if len(s) != expectedLen {
		return fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidInput, expectedLen, len(s))
	}
	for i, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return fmt.Errorf("%w: invalid hex character at position %d", ErrInvalidInput, i)
		}
	}
	return nil
}
