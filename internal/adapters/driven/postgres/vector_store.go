package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*VectorStore)(nil)

// HNSW index parameters
const (
	HNSWIndexName      = "idx_content_embeddings_hnsw"
	HNSWM              = 16
	HNSWEfConstruction = 64
)

const insertChunkSQL = `
	INSERT INTO content_embeddings (
		id, transcript_id, note_id, post_id, book_id,
		ref_grade, ref_chapter, ref_chapter_num,
		class_id, subject, content_type, chunk_text, chunk_index, token_count,
		embedding, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

const chunkColumns = `
	id, COALESCE(transcript_id, ''), COALESCE(note_id, ''), COALESCE(post_id, ''), COALESCE(book_id, ''),
	ref_grade, COALESCE(ref_chapter, ''), COALESCE(ref_chapter_num, 0),
	COALESCE(class_id, ''), COALESCE(subject, ''), content_type, chunk_text, chunk_index, token_count, created_at
`

// VectorStore implements driven.VectorStore on PostgreSQL with pgvector.
// Inserts are plain INSERTs; callers delete before re-ingesting.
type VectorStore struct {
	db         *DB
	dimensions int
	logger     *slog.Logger
}

// NewVectorStore creates a store for vectors of the given width.
func NewVectorStore(db *DB, dimensions int, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{db: db, dimensions: dimensions, logger: logger}
}

func (s *VectorStore) insertArgs(c *domain.Chunk) ([]any, error) {
	var embedding any
	if c.HasEmbedding() {
		if len(c.Embedding) != s.dimensions {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d",
				domain.ErrInvalidInput, len(c.Embedding), s.dimensions)
		}
		embedding = pgvector.NewVector(c.Embedding)
	}

	var refGrade, refChapterNum sql.NullInt64
	var refChapter sql.NullString
	if ref := c.Provenance.Reference; ref != nil {
		refGrade = sql.NullInt64{Int64: int64(ref.Grade), Valid: true}
		refChapter = NullString(ref.Chapter)
		refChapterNum = NullInt(ref.ChapterNum)
	}

	return []any{
		c.ID,
		NullString(c.Provenance.TranscriptID),
		NullString(c.Provenance.NoteID),
		NullString(c.Provenance.PostID),
		NullString(c.Provenance.BookID),
		refGrade,
		refChapter,
		refChapterNum,
		NullString(c.ClassID),
		NullString(c.Subject),
		string(c.ContentType),
		c.Text,
		c.Index,
		c.TokenCount,
		embedding,
		c.CreatedAt,
	}, nil
}

// Upsert inserts one chunk in its own transaction
func (s *VectorStore) Upsert(ctx context.Context, chunk *domain.Chunk) error {
	args, err := s.insertArgs(chunk)
	if err != nil {
		return &domain.StoreWriteError{ChunkID: chunk.ID, Index: chunk.Index, Err: err}
	}
	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertChunkSQL, args...)
		return err
	})
	if err != nil {
		return &domain.StoreWriteError{ChunkID: chunk.ID, Index: chunk.Index, Err: err}
	}
	return nil
}

// UpsertBatch inserts chunks in one transaction with a savepoint per row,
// so a bad row rolls back alone.
func (s *VectorStore) UpsertBatch(ctx context.Context, chunks []*domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	written := 0
	var rowErrs []error
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, c := range chunks {
			args, err := s.insertArgs(c)
			if err != nil {
				rowErrs = append(rowErrs, &domain.StoreWriteError{ChunkID: c.ID, Index: c.Index, Err: err})
				continue
			}
			if _, err := tx.ExecContext(ctx, "SAVEPOINT chunk_row"); err != nil {
				return fmt.Errorf("savepoint: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertChunkSQL, args...); err != nil {
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT chunk_row"); rbErr != nil {
					return fmt.Errorf("rollback to savepoint: %w", rbErr)
				}
				rowErrs = append(rowErrs, &domain.StoreWriteError{ChunkID: c.ID, Index: c.Index, Err: err})
				continue
			}
			if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT chunk_row"); err != nil {
				return fmt.Errorf("release savepoint: %w", err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write batch of %d: %w", len(chunks), err)
	}
	return written, errors.Join(rowErrs...)
}

// whereBuilder accumulates conjunctive conditions with numbered args.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// chunkFilterWhere renders a ChunkFilter. Empty fields are ignored.
func chunkFilterWhere(f domain.ChunkFilter) (string, []any) {
	var w whereBuilder
	if f.ClassID != "" {
		w.add("class_id = ?", f.ClassID)
	}
	if f.TranscriptID != "" {
		w.add("transcript_id = ?", f.TranscriptID)
	}
	if f.NoteID != "" {
		w.add("note_id = ?", f.NoteID)
	}
	if f.PostID != "" {
		w.add("post_id = ?", f.PostID)
	}
	if f.BookID != "" {
		w.add("book_id = ?", f.BookID)
	}
	if f.ReferenceGrade != 0 {
		w.add("ref_grade = ?", f.ReferenceGrade)
	}
	if f.ReferenceChapterNum != 0 {
		w.add("ref_chapter_num = ?", f.ReferenceChapterNum)
	}
	return w.sql(), w.args
}

// searchQuery renders the ranked search; $1 is the query vector.
func searchQuery(vector pgvector.Vector, f domain.SearchFilter, topK int) (string, []any) {
	w := whereBuilder{args: []any{vector}}
	w.raw("embedding IS NOT NULL")
	if f.ClassID != "" {
		w.add("class_id = ?", f.ClassID)
	}
	if f.Subject != "" {
		w.add("subject = ?", f.Subject)
	}
	if len(f.ContentTypes) > 0 {
		placeholders := make([]string, len(f.ContentTypes))
		for i, ct := range f.ContentTypes {
			w.args = append(w.args, string(ct))
			placeholders[i] = fmt.Sprintf("$%d", len(w.args))
		}
		w.raw("content_type IN (" + strings.Join(placeholders, ", ") + ")")
	}
	if f.Grade != 0 {
		w.add("ref_grade = ?", f.Grade)
	}
	w.args = append(w.args, topK)

	query := `
		SELECT id, chunk_text, content_type, chunk_index, embedding <=> $1 AS distance,
			COALESCE(transcript_id, note_id, post_id, book_id, ''),
			COALESCE(class_id, ''), COALESCE(subject, ''),
			COALESCE(ref_grade, 0), COALESCE(ref_chapter, '')
		FROM content_embeddings` + w.sql() + fmt.Sprintf(`
		ORDER BY distance ASC
		LIMIT $%d`, len(w.args))
	return query, w.args
}

// Search ranks chunks by cosine distance and drops any beyond MaxDistance
func (s *VectorStore) Search(ctx context.Context, vector []float32, filter domain.SearchFilter, opts domain.SearchOptions) ([]*domain.SearchResult, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d",
			domain.ErrInvalidInput, len(vector), s.dimensions)
	}
	opts = opts.Normalize()

	query, args := searchQuery(pgvector.NewVector(vector), filter, opts.TopK)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.SearchResult, 0, opts.TopK)
	for rows.Next() {
		var r domain.SearchResult
		var ct string
		if err := rows.Scan(&r.ChunkID, &r.ChunkText, &ct, &r.ChunkIndex, &r.Distance,
			&r.SourceID, &r.ClassID, &r.Subject, &r.Grade, &r.Chapter); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if r.Distance > opts.Floor() {
			continue
		}
		r.ContentType = domain.ContentType(ct)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

// Delete removes matching chunks and returns the count
func (s *VectorStore) Delete(ctx context.Context, filter domain.ChunkFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	where, args := chunkFilterWhere(filter)
	result, err := s.db.ExecContext(ctx, "DELETE FROM content_embeddings"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

// Count returns the number of matching chunks
func (s *VectorStore) Count(ctx context.Context, filter domain.ChunkFilter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	where, args := chunkFilterWhere(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content_embeddings"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// BuildIndex creates the HNSW cosine index, dropping it first when replace is set
func (s *VectorStore) BuildIndex(ctx context.Context, replace bool) error {
	if replace {
		if _, err := s.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+HNSWIndexName); err != nil {
			return fmt.Errorf("drop index: %w", err)
		}
		s.logger.Info("dropped HNSW index", "index", HNSWIndexName)
	}

	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s
		ON content_embeddings
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = %d, ef_construction = %d)`, HNSWIndexName, HNSWM, HNSWEfConstruction)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.logger.Info("HNSW index created or verified", "index", HNSWIndexName)
	return nil
}

// Stats reports coverage for a class, or the whole store when classID is empty
func (s *VectorStore) Stats(ctx context.Context, classID string) (*domain.EmbeddingStats, error) {
	query := `SELECT content_type, COUNT(*), COUNT(embedding) FROM content_embeddings`
	var args []any
	if classID != "" {
		query += ` WHERE class_id = $1`
		args = append(args, classID)
	}
	query += ` GROUP BY content_type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.EmbeddingStats{ClassID: classID, ByContentType: make(map[domain.ContentType]int)}
	for rows.Next() {
		var ct string
		var total, embedded int
		if err := rows.Scan(&ct, &total, &embedded); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByContentType[domain.ContentType(ct)] = total
		stats.Total += total
		stats.WithEmbedding += embedded
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	stats.WithoutEmbedding = stats.Total - stats.WithEmbedding
	return stats, nil
}

// ListMissingEmbeddings returns the oldest chunks stored without a vector
func (s *VectorStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + chunkColumns + `
		FROM content_embeddings
		WHERE embedding IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query missing embeddings: %w", err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(rows *sql.Rows) (*domain.Chunk, error) {
	var c domain.Chunk
	var refGrade sql.NullInt64
	var refChapter, ct string
	var refChapterNum int
	err := rows.Scan(
		&c.ID,
		&c.Provenance.TranscriptID,
		&c.Provenance.NoteID,
		&c.Provenance.PostID,
		&c.Provenance.BookID,
		&refGrade,
		&refChapter,
		&refChapterNum,
		&c.ClassID,
		&c.Subject,
		&ct,
		&c.Text,
		&c.Index,
		&c.TokenCount,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	c.ContentType = domain.ContentType(ct)
	if refGrade.Valid {
		c.Provenance.Reference = &domain.ReferenceMeta{
			Grade:      int(refGrade.Int64),
			Chapter:    refChapter,
			ChapterNum: refChapterNum,
		}
	}
	return &c, nil
}

// SetEmbedding attaches a vector to an existing chunk
func (s *VectorStore) SetEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	if len(vector) != s.dimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, want %d",
			domain.ErrInvalidInput, len(vector), s.dimensions)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE content_embeddings SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(vector), chunkID)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks the database is reachable
func (s *VectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
