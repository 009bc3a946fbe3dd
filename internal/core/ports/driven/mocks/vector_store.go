package mocks

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// MockVectorStore is an in-memory VectorStore computing real cosine distances.
type MockVectorStore struct {
	mu     sync.RWMutex
	chunks []*domain.Chunk

	// FailChunk makes Upsert/UpsertBatch fail for matching chunks (optional)
	FailChunk    func(c *domain.Chunk) bool
	BuildIndexFn func(replace bool) error
	// FailBatch makes UpsertBatch fail as a whole, writing nothing (optional)
	FailBatch    func(chunks []*domain.Chunk) error
	SearchFn     func(vector []float32) ([]*domain.SearchResult, error)

	IndexBuilds int
	Upserts     int
}

// NewMockVectorStore creates a new MockVectorStore
func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{}
}

func (m *MockVectorStore) Upsert(ctx context.Context, chunk *domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(chunk)
}

func (m *MockVectorStore) insertLocked(chunk *domain.Chunk) error {
	m.Upserts++
	if m.FailChunk != nil && m.FailChunk(chunk) {
		return &domain.StoreWriteError{ChunkID: chunk.ID, Index: chunk.Index, Err: errors.New("mock write failure")}
	}
	cp := *chunk
	m.chunks = append(m.chunks, &cp)
	return nil
}

func (m *MockVectorStore) UpsertBatch(ctx context.Context, chunks []*domain.Chunk) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBatch != nil {
		if err := m.FailBatch(chunks); err != nil {
			return 0, err
		}
	}
	var errs []error
	written := 0
	for _, c := range chunks {
		if err := m.insertLocked(c); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	return written, errors.Join(errs...)
}

func (m *MockVectorStore) Search(ctx context.Context, vector []float32, filter domain.SearchFilter, opts domain.SearchOptions) ([]*domain.SearchResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(vector)
	}
	opts = opts.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*domain.SearchResult
	for _, c := range m.chunks {
		if !c.HasEmbedding() || !matchesSearch(c, filter) {
			continue
		}
		d := CosineDistance(vector, c.Embedding)
		if d > opts.Floor() {
			continue
		}
		r := &domain.SearchResult{
			ChunkID:     c.ID,
			ChunkText:   c.Text,
			ContentType: c.ContentType,
			ChunkIndex:  c.Index,
			Distance:    d,
			SourceID:    c.Provenance.SourceID(),
			ClassID:     c.ClassID,
			Subject:     c.Subject,
		}
		if ref := c.Provenance.Reference; ref != nil {
			r.Grade = ref.Grade
			r.Chapter = ref.Chapter
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func matchesSearch(c *domain.Chunk, f domain.SearchFilter) bool {
	if f.ClassID != "" && c.ClassID != f.ClassID {
		return false
	}
	if f.Subject != "" && c.Subject != f.Subject {
		return false
	}
	if f.Grade != 0 && (c.Provenance.Reference == nil || c.Provenance.Reference.Grade != f.Grade) {
		return false
	}
	if len(f.ContentTypes) > 0 {
		ok := false
		for _, ct := range f.ContentTypes {
			if c.ContentType == ct {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func matchesFilter(c *domain.Chunk, f domain.ChunkFilter) bool {
	p := c.Provenance
	if f.ClassID != "" && c.ClassID != f.ClassID {
		return false
	}
	if f.TranscriptID != "" && p.TranscriptID != f.TranscriptID {
		return false
	}
	if f.NoteID != "" && p.NoteID != f.NoteID {
		return false
	}
	if f.PostID != "" && p.PostID != f.PostID {
		return false
	}
	if f.BookID != "" && p.BookID != f.BookID {
		return false
	}
	if f.ReferenceGrade != 0 && (p.Reference == nil || p.Reference.Grade != f.ReferenceGrade) {
		return false
	}
	if f.ReferenceChapterNum != 0 && (p.Reference == nil || p.Reference.ChapterNum != f.ReferenceChapterNum) {
		return false
	}
	return true
}

func (m *MockVectorStore) Delete(ctx context.Context, filter domain.ChunkFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	deleted := 0
	for _, c := range m.chunks {
		if matchesFilter(c, filter) {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return deleted, nil
}

func (m *MockVectorStore) Count(ctx context.Context, filter domain.ChunkFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.chunks {
		if matchesFilter(c, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MockVectorStore) BuildIndex(ctx context.Context, replace bool) error {
	m.mu.Lock()
	m.IndexBuilds++
	m.mu.Unlock()
	if m.BuildIndexFn != nil {
		return m.BuildIndexFn(replace)
	}
	return nil
}

func (m *MockVectorStore) Stats(ctx context.Context, classID string) (*domain.EmbeddingStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &domain.EmbeddingStats{ClassID: classID, ByContentType: map[domain.ContentType]int{}}
	for _, c := range m.chunks {
		if classID != "" && c.ClassID != classID {
			continue
		}
		st.Total++
		st.ByContentType[c.ContentType]++
		if c.HasEmbedding() {
			st.WithEmbedding++
		} else {
			st.WithoutEmbedding++
		}
	}
	return st, nil
}

func (m *MockVectorStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Chunk
	for _, c := range m.chunks {
		if c.HasEmbedding() {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockVectorStore) SetEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chunks {
		if c.ID == chunkID {
			c.Embedding = vector
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockVectorStore) Ping(ctx context.Context) error {
	return nil
}

// Helper methods for testing

// All returns copies of every stored chunk in insertion order.
func (m *MockVectorStore) All() []*domain.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Chunk, len(m.chunks))
	for i, c := range m.chunks {
		cp := *c
		out[i] = &cp
	}
	return out
}

// Put stores chunks directly, bypassing failure hooks.
func (m *MockVectorStore) Put(chunks ...*domain.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		m.chunks = append(m.chunks, &cp)
	}
}

// CosineDistance is 1 - cosine similarity; zero vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
