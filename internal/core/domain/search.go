package domain

import "fmt"

const (
	DefaultTopK        = 5
	DefaultMaxDistance = 0.6
	MaxTopK            = 50
)

// SearchFilter holds the optional conjunctive equality filters
type SearchFilter struct {
	ClassID      string        `json:"class_id,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	ContentTypes []ContentType `json:"content_types,omitempty"`
	Grade        int           `json:"grade,omitempty"`
}

// SearchOptions configures a similarity search.
// A nil MaxDistance means DefaultMaxDistance; an explicit 0 keeps only exact matches.
type SearchOptions struct {
	TopK        int      `json:"top_k"`
	MaxDistance *float64 `json:"max_distance,omitempty"`
}

// DefaultSearchOptions returns the retrieval defaults
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:        DefaultTopK,
		MaxDistance: Distance(DefaultMaxDistance),
	}
}

// Distance returns a pointer for SearchOptions.MaxDistance.
func Distance(d float64) *float64 {
	return &d
}

// Normalize fills unset values with defaults and clamps TopK.
// A negative MaxDistance is treated as unset.
func (o SearchOptions) Normalize() SearchOptions {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.TopK > MaxTopK {
		o.TopK = MaxTopK
	}
	o.MaxDistance = Distance(o.Floor())
	return o
}

// Floor returns the effective maximum cosine distance.
func (o SearchOptions) Floor() float64 {
	if o.MaxDistance == nil || *o.MaxDistance < 0 {
		return DefaultMaxDistance
	}
	return *o.MaxDistance
}

// SearchResult is one ranked chunk
type SearchResult struct {
	ChunkID     string      `json:"chunk_id"`
	ChunkText   string      `json:"chunk_text"`
	ContentType ContentType `json:"content_type"`
	ChunkIndex  int         `json:"chunk_index"`
	Distance    float64     `json:"distance"`
	SourceID    string      `json:"source_id,omitempty"`
	ClassID     string      `json:"class_id,omitempty"`
	Subject     string      `json:"subject,omitempty"`
	Grade       int         `json:"grade,omitempty"`
	Chapter     string      `json:"chapter,omitempty"`
}

// SearchResponse pairs results with their citation labels
type SearchResponse struct {
	Query     string          `json:"query"`
	Results   []*SearchResult `json:"results"`
	Citations []string        `json:"citations"`
}

// CitationLabel is the human-readable source name for one result.
func CitationLabel(r *SearchResult) string {
	switch r.ContentType {
	case ContentTypeReferenceBook:
		if r.Chapter != "" {
			return fmt.Sprintf("Reference: Grade %d — %s", r.Grade, r.Chapter)
		}
		return fmt.Sprintf("Reference: Grade %d", r.Grade)
	case ContentTypeTranscript:
		return "Class Transcript"
	case ContentTypeNoteSection:
		return "Class Notes"
	case ContentTypeCommunityPost:
		return "Community Discussion"
	case ContentTypeBookChunk:
		return "Book"
	}
	return "Source"
}

// CitationLabels returns deduplicated labels in first-seen order.
func CitationLabels(results []*SearchResult) []string {
	seen := make(map[string]bool, len(results))
	labels := make([]string, 0, len(results))
	for _, r := range results {
		l := CitationLabel(r)
		if seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}
	return labels
}

// Answer is a generated tutoring reply grounded in retrieved chunks
type Answer struct {
	Answer      string   `json:"answer"`
	Citations   []string `json:"citations"`
	SourcesUsed int      `json:"sources_used"`
}

// ChunkFilter selects chunks by scope or provenance; at least one field must be set.
type ChunkFilter struct {
	ClassID        string `json:"class_id,omitempty"`
	TranscriptID   string `json:"transcript_id,omitempty"`
	NoteID         string `json:"note_id,omitempty"`
	PostID         string `json:"post_id,omitempty"`
	BookID         string `json:"book_id,omitempty"`
	ReferenceGrade int    `json:"reference_grade,omitempty"`

	// ReferenceChapterNum narrows a ReferenceGrade filter to one chapter
	ReferenceChapterNum int `json:"reference_chapter_num,omitempty"`
}

// ChunkFilterFor selects every chunk of one source.
func ChunkFilterFor(key SourceKey) ChunkFilter {
	p := ProvenanceFor(key)
	return ChunkFilter{
		TranscriptID: p.TranscriptID,
		NoteID:       p.NoteID,
		PostID:       p.PostID,
		BookID:       p.BookID,
	}
}

// IsEmpty reports whether no field is set.
func (f ChunkFilter) IsEmpty() bool {
	return f == ChunkFilter{}
}

// Validate rejects filters that would match every row.
func (f ChunkFilter) Validate() error {
	if f.IsEmpty() {
		return fmt.Errorf("%w: filter requires a class id or source id", ErrInvalidInput)
	}
	if f.ReferenceChapterNum != 0 && f.ReferenceGrade == 0 {
		return fmt.Errorf("%w: reference chapter filter requires a grade", ErrInvalidInput)
	}
	return nil
}

// EmbeddingStats is the coverage report for a class (or the whole store)
type EmbeddingStats struct {
	ClassID          string              `json:"class_id,omitempty"`
	Total            int                 `json:"total"`
	ByContentType    map[ContentType]int `json:"by_content_type"`
	WithEmbedding    int                 `json:"with_embedding"`
	WithoutEmbedding int                 `json:"without_embedding"`
}

// CoveragePct is the share of chunks with vectors, rounded to one decimal.
func (s *EmbeddingStats) CoveragePct() float64 {
	if s.Total == 0 {
		return 0
	}
	pct := float64(s.WithEmbedding) / float64(s.Total) * 100
	return float64(int(pct*10+0.5)) / 10
}

// IsReady is true when there is content and every chunk has a vector.
func (s *EmbeddingStats) IsReady() bool {
	return s.Total > 0 && s.WithoutEmbedding == 0
}

// Understanding levels calibrate the tutoring persona; 3 is standard.
const (
	MinLevel     = 1
	DefaultLevel = 3
	MaxLevel     = 5
)

// ConversationTurn is one prior exchange in a tutoring session
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// AskRequest is a question to answer from retrieved context
type AskRequest struct {
	Question string             `json:"question"`
	Filter   SearchFilter       `json:"filter"`
	Options  SearchOptions      `json:"options"`
	Level    int                `json:"level,omitempty"`
	History  []ConversationTurn `json:"history,omitempty"`
}

// Validate rejects blank questions and clamps the level.
func (r *AskRequest) Validate() error {
	if WordCount(r.Question) == 0 {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if r.Level < MinLevel || r.Level > MaxLevel {
		r.Level = DefaultLevel
	}
	return nil
}
