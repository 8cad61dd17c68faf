// Package validate provides input validation for identifiers and free text
// received by the Melora daemon.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// Limits for the helpers below.
const (
	// MaxIDLength bounds document and catalog ids.
	MaxIDLength = 128
	// MaxMessageInputLength bounds a like message before it is normalized.
	MaxMessageInputLength = 1000
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
	NoControl      bool           // Whether control characters other than newline and tab are rejected
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidCharacters)
	}

	// Get actual character count (not byte count)
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	if constraints.NoControl {
		for _, r := range s {
			if unicode.IsControl(r) && r != '\n' && r != '\t' {
				return "", fmt.Errorf("%w: control character %U", ErrInvalidCharacters, r)
			}
		}
	}

	return s, nil
}

// idPattern matches store document ids and catalog track ids: printable ASCII
// without whitespace or path separators.
var idPattern = regexp.MustCompile(`^[\x21-\x2e\x30-\x7e]+$`)

// ID validates a document or track id. Surrounding whitespace is trimmed.
func ID(id string) (string, error) {
	return String(id, StringConstraints{
		MaxLength:      MaxIDLength,
		AllowedPattern: idPattern,
		TrimSpace:      true,
	})
}

// Message validates the raw text of a like message. Empty is allowed and
// means no message. Truncation to the stored length happens later.
func Message(text string) (string, error) {
	return String(text, StringConstraints{
		MaxLength:  MaxMessageInputLength,
		AllowEmpty: true,
		TrimSpace:  true,
		NoControl:  true,
	})
}
