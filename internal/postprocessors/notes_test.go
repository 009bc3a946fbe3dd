package postprocessors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

const detailedNotes = `Photosynthesis converts light energy into chemical energy stored in glucose molecules inside plant cells.

## Light reactions

The light reactions happen in the thylakoid membranes and produce ATP and NADPH for the next stage.

- water is split
- oxygen is released

## Short

Too short to keep.

### Calvin cycle
The Calvin cycle fixes carbon dioxide into sugars using the ATP and NADPH made earlier in the chloroplast stroma.

` + "```" + `
## not a heading inside code
` + "```"

func TestNoteChunker_Order(t *testing.T) {
	chunks := ChunkNotes(&domain.NoteContent{
		Summary:       "  Plants make food from light. ",
		KeyPoints:     []string{"Chlorophyll absorbs light", "  ", "Oxygen is a by-product"},
		DetailedNotes: detailedNotes,
		QAPairs: []domain.QAPair{
			{Question: "Where do light reactions occur?", Answer: "Thylakoids"},
			{Question: "Unanswered?", Answer: " "},
		},
	})

	require.Len(t, chunks, 7)
	assert.Equal(t, "Summary: Plants make food from light.", chunks[0])
	assert.Equal(t, "Key point: Chlorophyll absorbs light", chunks[1])
	assert.Equal(t, "Key point: Oxygen is a by-product", chunks[2])
	assert.True(t, strings.HasPrefix(chunks[3], "Photosynthesis converts"))
	assert.True(t, strings.HasPrefix(chunks[4], "Light reactions\nThe light reactions"))
	assert.Contains(t, chunks[4], "- oxygen is released")
	assert.True(t, strings.HasPrefix(chunks[5], "Calvin cycle\n"))
	assert.Contains(t, chunks[5], "## not a heading inside code")
	assert.Equal(t, "Q: Where do light reactions occur?\nA: Thylakoids", chunks[6])
}

func TestNoteChunker_Sections(t *testing.T) {
	c := NewNoteChunker()

	sections := c.Sections(detailedNotes)
	require.Len(t, sections, 4)
	assert.Equal(t, "Short\nToo short to keep.", sections[2])

	assert.Empty(t, c.Sections(""))
	assert.Equal(t, []string{"Title"}, c.Sections("# Title"))
	assert.Equal(t, []string{"A", "B\nbody"}, c.Sections("# A\n# B\nbody"))
	assert.Equal(t, []string{"Setext\nbody text"}, c.Sections("Setext\n======\n\nbody text"))
}

func TestNoteChunker_Sections_IrregularBlocks(t *testing.T) {
	c := NewNoteChunker()

	tests := []struct {
		name     string
		markdown string
		want     []string
	}{
		{
			name:     "thematic break after heading",
			markdown: "# Intro\n\n---\n\nbody text that should be kept\n\n# Next\n\nmore text",
			want:     []string{"Intro\n---\n\nbody text that should be kept", "Next\nmore text"},
		},
		{
			name:     "thematic break in last section",
			markdown: "# Intro\n\n---\n\nbody text that should be kept",
			want:     []string{"Intro\n---\n\nbody text that should be kept"},
		},
		{
			name:     "empty heading",
			markdown: "# A\n\n##\n\nbody\n\n# B\n\nmore",
			want:     []string{"A\nbody", "B\nmore"},
		},
		{
			name:     "empty heading first",
			markdown: "##\n\nbody",
			want:     []string{"body"},
		},
		{
			name:     "fenced code after heading",
			markdown: "## Code\n```go\nx := 1\n```\n\n## After\ntext",
			want:     []string{"Code\n```go\nx := 1\n```", "After\ntext"},
		},
		{
			name:     "html block after heading",
			markdown: "# H\n<div>\nhi\n</div>\n",
			want:     []string{"H\n<div>\nhi\n</div>"},
		},
		{
			name:     "setext heading followed by atx",
			markdown: "Title\n-----\nintro\n\n## Part\nbody",
			want:     []string{"Title\nintro", "Part\nbody"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, c.Sections(tt.markdown))
			})
		})
	}
}

func TestNoteChunker_ThematicBreakKeepsBody(t *testing.T) {
	body := words(20)
	chunks := ChunkNotes(&domain.NoteContent{DetailedNotes: "# Intro\n\n---\n\n" + body})
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], body)
}

func TestNoteChunker_LongSectionIsWindowed(t *testing.T) {
	long := "## Long section\n\n" + words(600)
	chunks := ChunkNotes(&domain.NoteContent{DetailedNotes: long})

	// 602 words at 250/30: starts 0, 220, 440
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, domain.WordCount(c), NoteWindowSize)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "Long section w0"))
}

func TestNoteChunker_EmptyNotes(t *testing.T) {
	assert.Empty(t, ChunkNotes(nil))
	assert.Empty(t, ChunkNotes(&domain.NoteContent{}))
	assert.Empty(t, ChunkNotes(&domain.NoteContent{
		Summary:       " \n ",
		KeyPoints:     []string{""},
		DetailedNotes: "## Heading\n\nfew words only",
	}))
}

func TestNoteChunker_Deterministic(t *testing.T) {
	n := &domain.NoteContent{Summary: "s", DetailedNotes: detailedNotes}
	assert.Equal(t, ChunkNotes(n), ChunkNotes(n))
}
