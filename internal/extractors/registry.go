package extractors

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry dispatches extraction by filename extension, then by mime type.
type Registry struct {
	mu         sync.RWMutex
	extractors []driven.Extractor
}

// NewRegistry creates an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make([]driven.Extractor, 0),
	}
}

// DefaultRegistry creates a registry with the PDF, DOCX and text extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFExtractor())
	r.Register(&DOCXExtractor{})
	r.Register(&TextExtractor{})
	return r
}

// Register adds an extractor. Later registrations win on conflicts.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, e)
}

// Get returns the extractor for a filename or mime type hint.
func (r *Registry) Get(hint string) driven.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ext := extensionOf(hint); ext != "" {
		for i := len(r.extractors) - 1; i >= 0; i-- {
			for _, e := range r.extractors[i].Extensions() {
				if e == ext {
					return r.extractors[i]
				}
			}
		}
	}
	for i := len(r.extractors) - 1; i >= 0; i-- {
		if matchesMIMEType(r.extractors[i].MimeTypes(), hint) {
			return r.extractors[i]
		}
	}
	return nil
}

// Extract dispatches to the matching extractor.
func (r *Registry) Extract(ctx context.Context, data []byte, hint string) (*domain.ExtractedText, error) {
	e := r.Get(hint)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, hint)
	}
	return e.Extract(ctx, data, hint)
}

// Extensions lists every registered extension.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, e := range r.extractors {
		for _, ext := range e.Extensions() {
			set[ext] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for ext := range set {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// extensionOf returns the lower-case extension when hint looks like a filename.
func extensionOf(hint string) string {
	if strings.Contains(hint, "/") && !strings.Contains(filepath.Base(hint), ".") {
		return ""
	}
	return strings.ToLower(filepath.Ext(hint))
}

// matchesMIMEType checks if any of the supported types match the given MIME type.
// Supports wildcard matching (e.g., "text/*" matches "text/plain").
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" {
		return false
	}

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))
		if supported == mimeType {
			return true
		}
		if strings.HasSuffix(supported, "/*") && strings.HasPrefix(mimeType, supported[:len(supported)-1]) {
			return true
		}
	}
	return false
}
