package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentType classifies where a chunk's text came from
type ContentType string

const (
	ContentTypeTranscript    ContentType = "transcript_chunk"
	ContentTypeNoteSection   ContentType = "note_section"
	ContentTypeCommunityPost ContentType = "community_post"
	ContentTypeBookChunk     ContentType = "book_chunk"
	ContentTypeReferenceBook ContentType = "reference_book"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeTranscript, ContentTypeNoteSection, ContentTypeCommunityPost,
		ContentTypeBookChunk, ContentTypeReferenceBook:
		return true
	}
	return false
}

// ReferenceMeta marks a chunk from a standalone reference textbook.
type ReferenceMeta struct {
	Grade      int    `json:"grade"`
	Chapter    string `json:"chapter"`
	ChapterNum int    `json:"chapter_num"`
}

// Provenance links a chunk to the document it was cut from.
// Exactly one source id is set, or only Reference is set.
type Provenance struct {
	TranscriptID string         `json:"transcript_id,omitempty"`
	NoteID       string         `json:"note_id,omitempty"`
	PostID       string         `json:"post_id,omitempty"`
	BookID       string         `json:"book_id,omitempty"`
	Reference    *ReferenceMeta `json:"reference,omitempty"`
}

// ProvenanceFor builds the provenance for a source key.
func ProvenanceFor(key SourceKey) Provenance {
	switch key.Kind {
	case SourceKindTranscript:
		return Provenance{TranscriptID: key.ID}
	case SourceKindNote:
		return Provenance{NoteID: key.ID}
	case SourceKindPost:
		return Provenance{PostID: key.ID}
	case SourceKindBook:
		return Provenance{BookID: key.ID}
	}
	return Provenance{}
}

// Validate enforces the single-provenance rule.
func (p Provenance) Validate() error {
	set := 0
	for _, id := range []string{p.TranscriptID, p.NoteID, p.PostID, p.BookID} {
		if id != "" {
			set++
		}
	}
	if p.Reference != nil {
		if set > 0 {
			return fmt.Errorf("%w: reference chunk cannot also link a source document", ErrInvalidInput)
		}
		if p.Reference.Grade <= 0 {
			return fmt.Errorf("%w: reference chunk requires a grade", ErrInvalidInput)
		}
		return nil
	}
	if set != 1 {
		return fmt.Errorf("%w: chunk must have exactly one provenance link, got %d", ErrInvalidInput, set)
	}
	return nil
}

// SourceID returns whichever source id is set, or "" for reference chunks.
func (p Provenance) SourceID() string {
	switch {
	case p.TranscriptID != "":
		return p.TranscriptID
	case p.NoteID != "":
		return p.NoteID
	case p.PostID != "":
		return p.PostID
	default:
		return p.BookID
	}
}

// Chunk is the atomic retrievable unit. A nil Embedding means not yet embedded.
type Chunk struct {
	ID          string      `json:"id"`
	Provenance  Provenance  `json:"provenance"`
	ClassID     string      `json:"class_id,omitempty"`
	Subject     string      `json:"subject,omitempty"`
	ContentType ContentType `json:"content_type"`
	Text        string      `json:"chunk_text"`
	Index       int         `json:"chunk_index"`
	TokenCount  int         `json:"token_count"`
	Embedding   []float32   `json:"embedding,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ChunkParams are the inputs to NewChunk.
type ChunkParams struct {
	Provenance  Provenance
	ClassID     string
	Subject     string
	ContentType ContentType
	Text        string
	Index       int
	Embedding   []float32
}

// NewChunk validates params and returns a chunk with a fresh id.
func NewChunk(p ChunkParams) (*Chunk, error) {
	if err := p.Provenance.Validate(); err != nil {
		return nil, err
	}
	if !p.ContentType.Valid() {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, p.ContentType)
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, fmt.Errorf("%w: chunk text is empty", ErrInvalidInput)
	}
	if p.Index < 0 {
		return nil, fmt.Errorf("%w: negative chunk index", ErrInvalidInput)
	}
	return &Chunk{
		ID:          uuid.NewString(),
		Provenance:  p.Provenance,
		ClassID:     p.ClassID,
		Subject:     p.Subject,
		ContentType: p.ContentType,
		Text:        p.Text,
		Index:       p.Index,
		TokenCount:  WordCount(p.Text),
		Embedding:   p.Embedding,
		CreatedAt:   time.Now(),
	}, nil
}

// HasEmbedding reports whether the chunk carries a vector.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// WordCount is the whitespace-delimited token estimate used for chunk sizing.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
