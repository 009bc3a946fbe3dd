// Package catalog loads the reference textbook catalog used by bulk ingestion.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in NCERT Mathematics catalog (grades 8, 9, 10).
func Default() *domain.Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*domain.Catalog, error) {
	var c domain.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: parse catalog: %v", domain.ErrInvalidInput, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a catalog file. An empty path returns the default catalog.
func Load(path string) (*domain.Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// ChapterPath is the path a chapter is matched under, e.g. "9/02".
func ChapterPath(grade int, ch domain.Chapter) string {
	return fmt.Sprintf("%d/%02d", grade, ch.Num)
}

// Select returns a copy of c restricted to grades and to chapters whose
// ChapterPath matches any pattern. Empty grades or patterns select everything.
// Grades missing from the catalog are an error.
func Select(c *domain.Catalog, grades []int, patterns []string) (*domain.Catalog, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: bad chapter pattern %q", domain.ErrInvalidInput, p)
		}
	}
	if len(grades) == 0 {
		grades = c.GradeNumbers()
	}

	out := &domain.Catalog{BaseURL: c.BaseURL, Grades: make(map[int]*domain.GradeBook, len(grades))}
	for _, g := range grades {
		book, err := c.Book(g)
		if err != nil {
			return nil, err
		}
		cp := *book
		cp.Chapters = nil
		for _, ch := range book.Chapters {
			if matchesAny(patterns, ChapterPath(g, ch)) {
				cp.Chapters = append(cp.Chapters, ch)
			}
		}
		out.Grades[g] = &cp
	}
	return out, nil
}

func matchesAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}
