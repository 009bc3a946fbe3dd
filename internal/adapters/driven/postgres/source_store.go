package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore implements driven.SourceStore using PostgreSQL.
// Binary uploads go to the content column, structured notes to note.
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a new SourceStore
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// Save creates or updates a source document
func (s *SourceStore) Save(ctx context.Context, doc *domain.SourceDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	var noteJSON []byte
	if doc.Note != nil {
		b, err := json.Marshal(doc.Note)
		if err != nil {
			return fmt.Errorf("marshal note: %w", err)
		}
		noteJSON = b
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := `
		INSERT INTO source_documents (source_key, kind, source_id, class_id, subject, title, filename, mime_type, content, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source_key) DO UPDATE SET
			class_id = EXCLUDED.class_id,
			subject = EXCLUDED.subject,
			title = EXCLUDED.title,
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			content = EXCLUDED.content,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.Key.String(),
		string(doc.Key.Kind),
		doc.Key.ID,
		NullString(doc.ClassID),
		NullString(doc.Subject),
		NullString(doc.Title),
		NullString(doc.Filename),
		NullString(doc.MimeType),
		doc.Content,
		noteJSON,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save source %s: %w", doc.Key, err)
	}
	return nil
}

// Get retrieves a source document by key
func (s *SourceStore) Get(ctx context.Context, key domain.SourceKey) (*domain.SourceDocument, error) {
	query := `
		SELECT kind, source_id, class_id, subject, title, filename, mime_type, content, note, created_at, updated_at
		FROM source_documents
		WHERE source_key = $1
	`

	var doc domain.SourceDocument
	var kind string
	var classID, subject, title, filename, mimeType sql.NullString
	var noteJSON []byte

	err := s.db.QueryRowContext(ctx, query, key.String()).Scan(
		&kind,
		&doc.Key.ID,
		&classID,
		&subject,
		&title,
		&filename,
		&mimeType,
		&doc.Content,
		&noteJSON,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", key, err)
	}

	doc.Key.Kind = domain.SourceKind(kind)
	doc.ClassID = classID.String
	doc.Subject = subject.String
	doc.Title = title.String
	doc.Filename = filename.String
	doc.MimeType = mimeType.String

	if len(noteJSON) > 0 {
		var note domain.NoteContent
		if err := json.Unmarshal(noteJSON, &note); err != nil {
			return nil, fmt.Errorf("unmarshal note for %s: %w", key, err)
		}
		doc.Note = &note
	}

	return &doc, nil
}

// Delete removes a source document. Missing documents are not an error.
func (s *SourceStore) Delete(ctx context.Context, key domain.SourceKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_documents WHERE source_key = $1`, key.String())
	return err
}
