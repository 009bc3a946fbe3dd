package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SourceKind identifies which kind of document a source is
type SourceKind string

const (
	SourceKindTranscript SourceKind = "transcript"
	SourceKindNote       SourceKind = "note"
	SourceKindPost       SourceKind = "post"
	SourceKindBook       SourceKind = "book"
)

// ParseSourceKind validates a kind taken from a URL or payload.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(s)); k {
	case SourceKindTranscript, SourceKindNote, SourceKindPost, SourceKindBook:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown source kind %q", ErrInvalidInput, s)
}

// ContentType returns the chunk content type produced for this kind.
func (k SourceKind) ContentType() ContentType {
	switch k {
	case SourceKindTranscript:
		return ContentTypeTranscript
	case SourceKindNote:
		return ContentTypeNoteSection
	case SourceKindPost:
		return ContentTypeCommunityPost
	default:
		return ContentTypeBookChunk
	}
}

// SourceKey identifies one source document
type SourceKey struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id"`
}

func (k SourceKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// ParseSourceKey parses the "kind:id" form produced by String.
func ParseSourceKey(s string) (SourceKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return SourceKey{}, fmt.Errorf("%w: malformed source key %q", ErrInvalidInput, s)
	}
	k, err := ParseSourceKind(kind)
	if err != nil {
		return SourceKey{}, err
	}
	return SourceKey{Kind: k, ID: id}, nil
}

// SourceDescriptor is the inbound metadata for a source document
type SourceDescriptor struct {
	Key      SourceKey `json:"key"`
	ClassID  string    `json:"class_id,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	Title    string    `json:"title,omitempty"`
	Filename string    `json:"filename,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
}

// Validate checks the descriptor's identity fields.
func (d *SourceDescriptor) Validate() error {
	if d.Key.ID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if _, err := ParseSourceKind(string(d.Key.Kind)); err != nil {
		return err
	}
	return nil
}

// TypeHint returns the filename if present, else the mime type.
func (d *SourceDescriptor) TypeHint() string {
	if d.Filename != "" {
		return filepath.Base(d.Filename)
	}
	return d.MimeType
}

// QAPair is one question/answer unit of generated notes
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NoteContent is the structured form of generated class notes
type NoteContent struct {
	Summary       string   `json:"summary,omitempty"`
	KeyPoints     []string `json:"key_points,omitempty"`
	DetailedNotes string   `json:"detailed_notes,omitempty"`
	QAPairs       []QAPair `json:"qa_pairs,omitempty"`
}

// IsEmpty reports whether the notes contain any text at all.
func (n *NoteContent) IsEmpty() bool {
	if n == nil {
		return true
	}
	if strings.TrimSpace(n.Summary) != "" || strings.TrimSpace(n.DetailedNotes) != "" {
		return false
	}
	for _, p := range n.KeyPoints {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	for _, qa := range n.QAPairs {
		if strings.TrimSpace(qa.Question) != "" || strings.TrimSpace(qa.Answer) != "" {
			return false
		}
	}
	return true
}

// SourceDocument is a stored upload awaiting (or done with) ingestion.
// Exactly one of Content or Note is populated.
type SourceDocument struct {
	SourceDescriptor
	Content   []byte       `json:"-"`
	Note      *NoteContent `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ExtractedText is normalized text plus a page/section count for diagnostics
type ExtractedText struct {
	Text  string `json:"text"`
	Units int    `json:"units"`
}
