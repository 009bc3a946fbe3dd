package postprocessors

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Window sizes in words.
const (
	DefaultChunkSize   = 500
	DefaultOverlap     = 50
	ReferenceChunkSize = 400
	ReferenceOverlap   = 40
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors in order, starting with a WindowChunker.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// NewTextPipeline windows free text and drops blank segments.
func NewTextPipeline(size, overlap int) *Pipeline {
	p := NewPipeline()
	p.Add(NewWindowChunker(size, overlap))
	p.Add(NewWhitespaceNormalizer())
	return p
}

// NewReferencePipeline is NewTextPipeline plus a context prefix on every chunk.
func NewReferencePipeline(size, overlap int, prefix string) *Pipeline {
	p := NewTextPipeline(size, overlap)
	p.Add(NewContextPrefixer(prefix))
	return p
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order to the full document text.
func (p *Pipeline) Process(text string) []driven.Segment {
	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	segments := []driven.Segment{{Text: text, Position: 0}}
	for _, proc := range processors {
		segments = proc.Process(segments)
	}
	return segments
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// Texts returns the segment texts in position order.
func Texts(segments []driven.Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Text
	}
	return out
}

// ValidateWindow checks a (size, overlap) pair.
func ValidateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrInvalidInput, size, overlap)
	}
	return nil
}

// Window splits text into word windows of size words, each starting
// size-overlap words after the previous one. The last window may be short.
// Empty input yields nil. Out-of-range arguments are clamped.
func Window(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Reconstruct rebuilds the whitespace-normalized text from Window output.
func Reconstruct(chunks []string, overlap int) string {
	var words []string
	for i, c := range chunks {
		w := strings.Fields(c)
		if i > 0 {
			if overlap > len(w) {
				w = nil
			} else {
				w = w[overlap:]
			}
		}
		words = append(words, w...)
	}
	return strings.Join(words, " ")
}

// WindowChunker splits segments into overlapping word windows.
// This is the first processor in the pipeline (Order = 0).
type WindowChunker struct {
	size    int
	overlap int
}

// Verify interface compliance
var _ driven.PostProcessor = (*WindowChunker)(nil)

// NewWindowChunker creates a chunker; see Window for clamping.
func NewWindowChunker(size, overlap int) *WindowChunker {
	return &WindowChunker{size: size, overlap: overlap}
}

// Process splits every segment and renumbers positions.
func (c *WindowChunker) Process(segments []driven.Segment) []driven.Segment {
	var result []driven.Segment
	for _, seg := range segments {
		for _, text := range Window(seg.Text, c.size, c.overlap) {
			result = append(result, driven.Segment{Text: text, Position: len(result)})
		}
	}
	return result
}

func (c *WindowChunker) Name() string {
	return "window-chunker"
}

func (c *WindowChunker) Order() int {
	return 0
}

// WhitespaceNormalizer trims segments and drops empty ones.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process collapses space runs within lines and renumbers the survivors.
func (w *WhitespaceNormalizer) Process(segments []driven.Segment) []driven.Segment {
	result := make([]driven.Segment, 0, len(segments))

	for _, seg := range segments {
		lines := strings.Split(strings.ReplaceAll(seg.Text, "\r\n", "\n"), "\n")
		for i, line := range lines {
			lines[i] = strings.Join(strings.Fields(line), " ")
		}
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text == "" {
			continue
		}
		result = append(result, driven.Segment{Text: text, Position: len(result)})
	}

	return result
}

func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 5 so it runs right after the chunker.
func (w *WhitespaceNormalizer) Order() int {
	return 5
}

// ContextPrefixer prepends a fixed context string to every segment.
type ContextPrefixer struct {
	prefix string
}

// Verify interface compliance
var _ driven.PostProcessor = (*ContextPrefixer)(nil)

// NewContextPrefixer creates a prefixer. An empty prefix is a no-op.
func NewContextPrefixer(prefix string) *ContextPrefixer {
	return &ContextPrefixer{prefix: prefix}
}

func (c *ContextPrefixer) Process(segments []driven.Segment) []driven.Segment {
	if c.prefix == "" {
		return segments
	}
	result := make([]driven.Segment, len(segments))
	for i, seg := range segments {
		seg.Text = c.prefix + seg.Text
		result[i] = seg
	}
	return result
}

func (c *ContextPrefixer) Name() string {
	return "context-prefixer"
}

// Order returns 20; the prefix is added after window sizes are fixed.
func (c *ContextPrefixer) Order() int {
	return 20
}
