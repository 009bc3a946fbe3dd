package postprocessors

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// Structured note thresholds in words.
const (
	NoteSectionMinWords = 10
	NoteSectionMaxWords = 300
	NoteWindowSize      = 250
	NoteWindowOverlap   = 30
)

// NoteChunker turns structured notes into one chunk per complete unit.
type NoteChunker struct {
	md goldmark.Markdown
}

// NewNoteChunker creates a chunker with a CommonMark parser.
func NewNoteChunker() *NoteChunker {
	return &NoteChunker{md: goldmark.New()}
}

var defaultNoteChunker = NewNoteChunker()

// ChunkNotes uses the shared default NoteChunker.
func ChunkNotes(n *domain.NoteContent) []string {
	return defaultNoteChunker.Chunk(n)
}

// Chunk emits the summary, each key point, each long-form section and each
// question/answer pair in that order. Blank units are skipped. Sections of
// NoteSectionMinWords or fewer are dropped and sections above
// NoteSectionMaxWords are windowed.
func (c *NoteChunker) Chunk(n *domain.NoteContent) []string {
	if n == nil {
		return nil
	}
	var chunks []string

	if s := strings.TrimSpace(n.Summary); s != "" {
		chunks = append(chunks, "Summary: "+s)
	}

	for _, p := range n.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, "Key point: "+p)
		}
	}

	for _, section := range c.Sections(n.DetailedNotes) {
		words := domain.WordCount(section)
		switch {
		case words <= NoteSectionMinWords:
		case words > NoteSectionMaxWords:
			chunks = append(chunks, Window(section, NoteWindowSize, NoteWindowOverlap)...)
		default:
			chunks = append(chunks, section)
		}
	}

	for _, qa := range n.QAPairs {
		q, a := strings.TrimSpace(qa.Question), strings.TrimSpace(qa.Answer)
		if q != "" && a != "" {
			chunks = append(chunks, fmt.Sprintf("Q: %s\nA: %s", q, a))
		}
	}

	return chunks
}

// Sections splits markdown at top-level headings. Each section starts with
// its heading text (markers removed) followed by the body up to the next
// heading. Text before the first heading is its own section. Headings
// without text do not split and their marker line is dropped.
func (c *NoteChunker) Sections(markdown string) []string {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}
	source := []byte(markdown)
	doc := c.md.Parser().Parse(text.NewReader(source))

	var sections []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	heading := ""
	bodyStart := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines() == nil || h.Lines().Len() == 0 {
			continue
		}
		start := max(lineStart(source, h.Lines().At(0).Start), bodyStart)
		add(joinSection(heading, source[bodyStart:start]))

		heading = headingText(h, source)
		bodyStart = max(headingEnd(h, source), start)
	}
	add(joinSection(heading, source[bodyStart:]))
	return sections
}

var bareHeadingMarker = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*$`)

func joinSection(heading string, body []byte) string {
	b := strings.TrimSpace(bareHeadingMarker.ReplaceAllString(string(body), ""))
	switch {
	case heading == "":
		return b
	case b == "":
		return heading
	default:
		return heading + "\n" + b
	}
}

func headingText(h *ast.Heading, source []byte) string {
	var buf bytes.Buffer
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.Write(bytes.TrimSpace(seg.Value(source)))
	}
	return buf.String()
}

// headingEnd returns the offset just past the heading's last source line,
// including the underline of a setext heading.
func headingEnd(h *ast.Heading, source []byte) int {
	lines := h.Lines()
	first, last := lines.At(0), lines.At(lines.Len()-1)
	end := lineEnd(source, max(last.Stop-1, last.Start))
	if !isATXLine(source, first.Start) {
		end = lineEnd(source, end)
	}
	return end
}

func isATXLine(source []byte, offset int) bool {
	line := source[lineStart(source, offset):]
	return bytes.HasPrefix(bytes.TrimLeft(line, " "), []byte("#"))
}

func lineStart(source []byte, offset int) int {
	if offset > len(source) {
		offset = len(source)
	}
	return bytes.LastIndexByte(source[:offset], '\n') + 1
}

// lineEnd returns the offset after the newline ending the line at offset.
func lineEnd(source []byte, offset int) int {
	if offset >= len(source) {
		return len(source)
	}
	if i := bytes.IndexByte(source[offset:], '\n'); i >= 0 {
		return offset + i + 1
	}
	return len(source)
}
