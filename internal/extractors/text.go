package extractors

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// wordsPerUnit approximates a page for formats without real pagination.
const wordsPerUnit = 500

// TextExtractor handles plain text and markdown uploads.
type TextExtractor struct{}

func (e *TextExtractor) Extensions() []string {
	return []string{".txt", ".md", ".markdown", ".vtt", ".srt"}
}

func (e *TextExtractor) MimeTypes() []string {
	return []string{"text/*"}
}

// Extract decodes UTF-8, replacing invalid sequences instead of failing.
func (e *TextExtractor) Extract(_ context.Context, data []byte, hint string) (*domain.ExtractedText, error) {
	s := string(data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	text := NormalizeWhitespace(s)
	if text == "" {
		return nil, domain.NewExtractionError(hint, errors.New("document contains no text"))
	}
	return &domain.ExtractedText{Text: text, Units: pseudoPages(text)}, nil
}

func pseudoPages(text string) int {
	n := domain.WordCount(text) / wordsPerUnit
	if n < 1 {
		return 1
	}
	return n
}

// NormalizeWhitespace unifies line endings, trims trailing spaces on each
// line and collapses runs of blank lines to one.
func NormalizeWhitespace(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, "\f", "\n")

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\u00a0")
		if strings.TrimSpace(line) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
