package domain

import (
	"errors"
	"testing"
)

func TestProvenance_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Provenance
		wantErr bool
	}{
		{"transcript only", Provenance{TranscriptID: "t-1"}, false},
		{"note only", Provenance{NoteID: "n-1"}, false},
		{"post only", Provenance{PostID: "p-1"}, false},
		{"book only", Provenance{BookID: "b-1"}, false},
		{"reference only", Provenance{Reference: &ReferenceMeta{Grade: 9, Chapter: "Polynomials", ChapterNum: 2}}, false},
		{"none", Provenance{}, true},
		{"two ids", Provenance{TranscriptID: "t-1", NoteID: "n-1"}, true},
		{"reference plus id", Provenance{BookID: "b-1", Reference: &ReferenceMeta{Grade: 9}}, true},
		{"reference without grade", Provenance{Reference: &ReferenceMeta{Chapter: "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestProvenanceFor(t *testing.T) {
	tests := []struct {
		key  SourceKey
		want Provenance
	}{
		{SourceKey{SourceKindTranscript, "1"}, Provenance{TranscriptID: "1"}},
		{SourceKey{SourceKindNote, "2"}, Provenance{NoteID: "2"}},
		{SourceKey{SourceKindPost, "3"}, Provenance{PostID: "3"}},
		{SourceKey{SourceKindBook, "4"}, Provenance{BookID: "4"}},
	}
	for _, tt := range tests {
		got := ProvenanceFor(tt.key)
		if got != tt.want {
			t.Errorf("ProvenanceFor(%v) = %+v, want %+v", tt.key, got, tt.want)
		}
		if got.SourceID() != tt.key.ID {
			t.Errorf("SourceID() = %q, want %q", got.SourceID(), tt.key.ID)
		}
	}
}

func TestNewChunk(t *testing.T) {
	c, err := NewChunk(ChunkParams{
		Provenance:  Provenance{NoteID: "n-1"},
		ClassID:     "class-7",
		ContentType: ContentTypeNoteSection,
		Text:        "Key point: the sum of angles is 180 degrees",
		Index:       3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == "" {
		t.Error("expected id to be set")
	}
	if c.TokenCount != 9 {
		t.Errorf("expected token count 9, got %d", c.TokenCount)
	}
	if c.HasEmbedding() {
		t.Error("expected no embedding")
	}
	if c.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestNewChunk_Invalid(t *testing.T) {
	base := ChunkParams{
		Provenance:  Provenance{TranscriptID: "t-1"},
		ContentType: ContentTypeTranscript,
		Text:        "some words",
	}

	tests := []struct {
		name   string
		mutate func(p *ChunkParams)
	}{
		{"empty text", func(p *ChunkParams) { p.Text = "   " }},
		{"negative index", func(p *ChunkParams) { p.Index = -1 }},
		{"bad content type", func(p *ChunkParams) { p.ContentType = "slides" }},
		{"double provenance", func(p *ChunkParams) { p.Provenance.PostID = "p-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if _, err := NewChunk(p); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("  a  b\n\tc "); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := WordCount(""); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
