package driven

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// Extractor converts raw document bytes into normalized plain text.
// It returns a *domain.ExtractionError rather than empty text on failure.
type Extractor interface {
	// Extract converts data; hint is the declared filename or mime type
	Extract(ctx context.Context, data []byte, hint string) (*domain.ExtractedText, error)

	// Extensions returns the lower-case file extensions handled (".pdf")
	Extensions() []string

	// MimeTypes returns the mime types handled
	MimeTypes() []string
}

// ExtractorRegistry dispatches by filename extension or mime type.
type ExtractorRegistry interface {
	// Get returns the extractor for hint, or nil if none matches
	Get(hint string) Extractor

	// Register adds an extractor
	Register(e Extractor)

	// Extract dispatches and runs the matching extractor.
	// Unknown types fail with domain.ErrUnsupportedFormat.
	Extract(ctx context.Context, data []byte, hint string) (*domain.ExtractedText, error)
}

// Segment is one piece of text flowing through the chunking pipeline.
type Segment struct {
	// Text is the segment content
	Text string

	// Position is the segment index within the document (0-based)
	Position int
}

// PostProcessor transforms segments. The first stage receives a single
// segment holding the full text.
type PostProcessor interface {
	Process(segments []Segment) []Segment

	// Name returns the processor name for logging/debugging
	Name() string

	// Order returns the position in the pipeline (lower = earlier)
	Order() int
}

// PostProcessorPipeline chains processors by Order.
type PostProcessorPipeline interface {
	Process(text string) []Segment
	Add(processor PostProcessor)
	List() []string
}
