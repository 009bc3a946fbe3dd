package extractors

import (
	"regexp"
	"strings"
)

// DefaultNoisePatterns match boilerplate lines in scanned reference textbooks.
var DefaultNoisePatterns = []string{
	`^\s*\d+\s*$`,                     // page numbers
	`^MATHEMATICS\s*$`,                // running header
	`^Class\s+(VIII|IX|X|8|9|10)\s*$`, // grade header
	`^NCERT\s*$`,
	`^\s*©\s*NCERT.*$`,
	`^not to be republished.*$`,
	`^FREE DISTRIBUTION.*$`,
	`^\s*EXERCISE\s+\d+[\.\d]*\s*$`,
}

// NoiseStripper removes whole lines that match any of its patterns.
// Stripping is idempotent and independent of line order.
type NoiseStripper struct {
	re *regexp.Regexp
}

// NewNoiseStripper compiles patterns case-insensitively.
func NewNoiseStripper(patterns []string) (*NoiseStripper, error) {
	if len(patterns) == 0 {
		return &NoiseStripper{}, nil
	}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(?:" + p + ")"
	}
	re, err := regexp.Compile("(?i)" + strings.Join(parts, "|"))
	if err != nil {
		return nil, err
	}
	return &NoiseStripper{re: re}, nil
}

var defaultStripper = func() *NoiseStripper {
	s, err := NewNoiseStripper(DefaultNoisePatterns)
	if err != nil {
		panic(err)
	}
	return s
}()

// StripNoise applies the default textbook patterns.
func StripNoise(text string) string {
	return defaultStripper.Strip(text)
}

// Strip drops matching lines and collapses blank runs.
func (s *NoiseStripper) Strip(text string) string {
	if s.re == nil {
		return NormalizeWhitespace(text)
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		if s.re.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return NormalizeWhitespace(strings.Join(kept, "\n"))
}
