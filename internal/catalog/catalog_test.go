package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "https://ncert.nic.in/textbook/pdf", c.BaseURL)
	assert.Equal(t, []int{8, 9, 10}, c.GradeNumbers())

	nine, err := c.Book(9)
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", nine.Subject)
	assert.Equal(t, "iemh1", nine.CodePrefix)
	require.Len(t, nine.Chapters, 12)
	assert.Equal(t, domain.Chapter{Num: 2, Title: "Polynomials"}, nine.Chapters[1])
	assert.Equal(t, "Heron's Formula", nine.Chapters[9].Title)

	url, err := c.ChapterURL(10, domain.Chapter{Num: 14, Title: "Probability"})
	require.NoError(t, err)
	assert.Equal(t, "https://ncert.nic.in/textbook/pdf/jemh114.pdf", url)

	ten, _ := c.Book(10)
	assert.Len(t, ten.Chapters, 14)
	eight, _ := c.Book(8)
	assert.Len(t, eight.Chapters, 13)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "grades: [unclosed"},
		{"no base url", "grades:\n  9: {subject: Maths, code_prefix: x, chapters: [{num: 1, title: A}]}\n"},
		{"no grades", "base_url: https://x\n"},
		{"duplicate chapter", "base_url: https://x\ngrades:\n  9:\n    subject: M\n    code_prefix: x\n    chapters: [{num: 1, title: A}, {num: 1, title: B}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Len(t, c.Grades, 3)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://books.example/pdf/
grades:
  11:
    subject: Physics
    board: NCERT
    code_prefix: keph1
    chapters:
      - {num: 1, title: "Units and Measurement"}
`), 0o644))

	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{11}, c.GradeNumbers())
	url, _ := c.ChapterURL(11, domain.Chapter{Num: 1})
	assert.Equal(t, "https://books.example/pdf/keph101.pdf", url)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	c := Default()

	all, err := Select(c, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all.Grades, 3)
	assert.Len(t, all.Grades[10].Chapters, 14)

	sel, err := Select(c, []int{9}, []string{"9/0[1-3]"})
	require.NoError(t, err)
	assert.Equal(t, []int{9}, sel.GradeNumbers())
	require.Len(t, sel.Grades[9].Chapters, 3)
	assert.Equal(t, "Coordinate Geometry", sel.Grades[9].Chapters[2].Title)

	// the source catalog is not modified
	assert.Len(t, c.Grades[9].Chapters, 12)

	sel, err = Select(c, []int{8, 10}, []string{"*/13"})
	require.NoError(t, err)
	assert.Len(t, sel.Grades[8].Chapters, 1)
	assert.Len(t, sel.Grades[10].Chapters, 1)

	_, err = Select(c, []int{12}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = Select(c, nil, []string{"9/[1-"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChapterPath(t *testing.T) {
	assert.Equal(t, "9/02", ChapterPath(9, domain.Chapter{Num: 2}))
	assert.Equal(t, "10/14", ChapterPath(10, domain.Chapter{Num: 14}))
}
