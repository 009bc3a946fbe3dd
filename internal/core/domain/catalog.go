package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog describes the reference textbooks available for bulk ingestion
type Catalog struct {
	BaseURL string             `yaml:"base_url" json:"base_url"`
	Grades  map[int]*GradeBook `yaml:"grades" json:"grades"`
}

// GradeBook is one textbook split into chapter files
type GradeBook struct {
	Subject    string    `yaml:"subject" json:"subject"`
	Board      string    `yaml:"board" json:"board"`
	CodePrefix string    `yaml:"code_prefix" json:"code_prefix"`
	Chapters   []Chapter `yaml:"chapters" json:"chapters"`
}

// Chapter is one downloadable chapter artifact
type Chapter struct {
	Num   int    `yaml:"num" json:"num"`
	Title string `yaml:"title" json:"title"`
}

// Validate checks the catalog is usable.
func (c *Catalog) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: catalog base_url is required", ErrInvalidInput)
	}
	if len(c.Grades) == 0 {
		return fmt.Errorf("%w: catalog has no grades", ErrInvalidInput)
	}
	for grade, book := range c.Grades {
		if book == nil || book.CodePrefix == "" {
			return fmt.Errorf("%w: grade %d has no code_prefix", ErrInvalidInput, grade)
		}
		if book.Subject == "" {
			return fmt.Errorf("%w: grade %d has no subject", ErrInvalidInput, grade)
		}
		seen := make(map[int]bool, len(book.Chapters))
		for _, ch := range book.Chapters {
			if ch.Num <= 0 || ch.Title == "" {
				return fmt.Errorf("%w: grade %d has an invalid chapter entry", ErrInvalidInput, grade)
			}
			if seen[ch.Num] {
				return fmt.Errorf("%w: grade %d lists chapter %d twice", ErrInvalidInput, grade, ch.Num)
			}
			seen[ch.Num] = true
		}
	}
	return nil
}

// GradeNumbers returns the configured grades in ascending order.
func (c *Catalog) GradeNumbers() []int {
	grades := make([]int, 0, len(c.Grades))
	for g := range c.Grades {
		grades = append(grades, g)
	}
	sort.Ints(grades)
	return grades
}

// Book returns the textbook for grade.
func (c *Catalog) Book(grade int) (*GradeBook, error) {
	b, ok := c.Grades[grade]
	if !ok {
		return nil, fmt.Errorf("%w: grade %d is not in the catalog", ErrNotFound, grade)
	}
	return b, nil
}

// ChapterURL is {base_url}/{code_prefix}{num:02d}.pdf.
func (c *Catalog) ChapterURL(grade int, ch Chapter) (string, error) {
	b, err := c.Book(grade)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + b.ChapterFile(ch), nil
}

// ChapterFile is the artifact name for a chapter.
func (b *GradeBook) ChapterFile(ch Chapter) string {
	return fmt.Sprintf("%s%02d.pdf", b.CodePrefix, ch.Num)
}

// ContextPrefix is prepended to every reference chunk so the vector carries
// grade, subject and chapter even without metadata filters.
func (b *GradeBook) ContextPrefix(grade int, ch Chapter) string {
	return fmt.Sprintf("Class %d %s – %s: ", grade, b.Subject, ch.Title)
}

// GradeStatus is the outcome of one grade in a catalog run
type GradeStatus string

const (
	GradeStatusCompleted       GradeStatus = "completed"
	GradeStatusAlreadyIngested GradeStatus = "already_ingested"
	GradeStatusDryRun          GradeStatus = "dry_run"
	GradeStatusFailed          GradeStatus = "failed"
)

// GradeResult summarises one grade of a catalog run
type GradeResult struct {
	Grade             int         `json:"grade"`
	ChaptersProcessed int         `json:"chapters_processed"`
	ChaptersSkipped   int         `json:"chapters_skipped"`
	TotalChunks       int         `json:"total_chunks"`
	FailedEmbeddings  int         `json:"failed_embeddings"`
	Skipped           bool        `json:"skipped"`
	Status            GradeStatus `json:"status"`
	Error             string      `json:"error,omitempty"`
}

// CatalogRunResult is the outcome of a whole catalog run
type CatalogRunResult struct {
	Grades      []GradeResult `json:"grades"`
	TotalChunks int           `json:"total_chunks"`
	IndexBuilt  bool          `json:"index_built"`
}
