package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven/mocks"
)

type ingestionFixture struct {
	sources  *mocks.MockSourceStore
	jobs     *mocks.MockJobStore
	vectors  *mocks.MockVectorStore
	queue    *mocks.MockTaskQueue
	lock     *mocks.MockDistributedLock
	embedder *mocks.MockEmbeddingService
	extract  *mocks.MockExtractorRegistry
	svc      *IngestionService
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		sources:  mocks.NewMockSourceStore(),
		jobs:     mocks.NewMockJobStore(),
		vectors:  mocks.NewMockVectorStore(),
		queue:    mocks.NewMockTaskQueue(),
		lock:     mocks.NewMockDistributedLock(),
		embedder: mocks.NewMockEmbeddingService(),
		extract:  &mocks.MockExtractorRegistry{},
	}
	f.svc = NewIngestionService(IngestionServiceConfig{
		Sources:    f.sources,
		Jobs:       f.jobs,
		Vectors:    f.vectors,
		Extractors: f.extract,
		Queue:      f.queue,
		Lock:       f.lock,
		Services:   newTestServices(f.embedder),
	})
	return f
}

func (f *ingestionFixture) storeTranscript(t *testing.T, id, text string) domain.SourceKey {
	t.Helper()
	key := domain.SourceKey{Kind: domain.SourceKindTranscript, ID: id}
	require.NoError(t, f.sources.Save(context.Background(), &domain.SourceDocument{
		SourceDescriptor: domain.SourceDescriptor{Key: key, ClassID: "class-7", Subject: "maths", Filename: "lecture.txt"},
		Content:          []byte(text),
	}))
	return key
}

func TestNewIngestionService_Defaults(t *testing.T) {
	svc := NewIngestionService(IngestionServiceConfig{})
	assert.Equal(t, 500, svc.chunkSize)
	assert.Equal(t, 50, svc.overlap)
	assert.Equal(t, DefaultBatchSize, svc.batchSize)
	assert.Equal(t, DefaultSourceLockTTL, svc.lockTTL)

	overlap := 40
	svc = NewIngestionService(IngestionServiceConfig{ChunkSize: 40, Overlap: &overlap})
	assert.Equal(t, 40, svc.chunkSize)
	assert.Equal(t, 20, svc.overlap, "overlap >= size falls back to a valid value")

	overlap = 0
	svc = NewIngestionService(IngestionServiceConfig{Overlap: &overlap})
	assert.Equal(t, 0, svc.overlap, "explicit zero overlap is kept")
}

func TestIngestionService_DisjointWindows(t *testing.T) {
	f := newIngestionFixture()
	f.svc.overlap = 0
	key := f.storeTranscript(t, "t-1", words("w", 1000))

	res, err := f.svc.Ingest(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedCount)

	chunks := f.vectors.All()
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "w500 "), "second window starts right after the first")
}

func TestIngestionService_Ingest(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	key := f.storeTranscript(t, "t-1", words("w", 4500))

	res, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
	assert.Equal(t, 10, res.ProcessedCount)
	assert.False(t, res.Skipped)

	chunks := f.vectors.All()
	require.Len(t, chunks, 10)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "t-1", c.Provenance.TranscriptID)
		assert.Equal(t, domain.ContentTypeTranscript, c.ContentType)
		assert.Equal(t, "class-7", c.ClassID)
		assert.True(t, c.HasEmbedding())
	}
	assert.False(t, f.lock.IsHeld("ingest:transcript:t-1"), "lock released after the run")

	history := f.jobs.History[res.JobID]
	assert.Equal(t, []domain.JobStatus{domain.JobStatusNotStarted, domain.JobStatusProcessing, domain.JobStatusCompleted}, history)
}

func TestIngestionService_Idempotent(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	key := f.storeTranscript(t, "t-1", words("w", 1200))

	first, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)
	calls := f.embedder.CallCount()

	second, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, domain.JobStatusSkipped, second.Status)
	assert.Equal(t, first.ProcessedCount, second.ProcessedCount)
	assert.Equal(t, calls, f.embedder.CallCount(), "no provider calls on a skipped run")
	assert.Len(t, f.vectors.All(), first.ProcessedCount)
}

func TestIngestionService_ForceReplaces(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	key := f.storeTranscript(t, "t-1", words("old", 4500))

	_, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)
	require.Len(t, f.vectors.All(), 10)

	// The source changed and is re-embedded with force
	f.storeTranscript(t, "t-1", words("new", 3000))
	res, err := f.svc.Ingest(ctx, key, true)
	require.NoError(t, err)
	assert.Equal(t, 7, res.ProcessedCount)

	chunks := f.vectors.All()
	require.Len(t, chunks, 7)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Text, "new"), "old chunks must be gone")
	}
}

func TestIngestionService_OtherSourcesUntouched(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	a := f.storeTranscript(t, "a", words("a", 600))
	b := f.storeTranscript(t, "b", words("b", 600))

	_, err := f.svc.Ingest(ctx, a, false)
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, b, false)
	require.NoError(t, err)
	before := len(f.vectors.All())

	_, err = f.svc.Ingest(ctx, a, true)
	require.NoError(t, err)
	assert.Len(t, f.vectors.All(), before)

	n, err := f.vectors.Count(ctx, domain.ChunkFilterFor(b))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestionService_MissingVectors(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	f.embedder.NilFor = func(text string) bool { return strings.HasPrefix(text, "w450 ") }
	key := f.storeTranscript(t, "t-1", words("w", 1200))

	res, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedEmbeddings)

	chunks := f.vectors.All()
	require.Len(t, chunks, 3)
	assert.False(t, chunks[1].HasEmbedding(), "chunk stored without a vector")
	assert.True(t, chunks[0].HasEmbedding())
}

func TestIngestionService_NoEmbeddingService(t *testing.T) {
	f := newIngestionFixture()
	f.svc.services = newTestServices(nil)
	key := f.storeTranscript(t, "t-1", words("w", 100))

	res, err := f.svc.Ingest(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedEmbeddings)
}

func TestIngestionService_StoreWriteFailure(t *testing.T) {
	f := newIngestionFixture()
	f.vectors.FailChunk = func(c *domain.Chunk) bool { return c.Index == 1 }
	key := f.storeTranscript(t, "t-1", words("w", 1200))

	res, err := f.svc.Ingest(context.Background(), key, false)
	require.NoError(t, err, "row failures do not abort the run")
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Len(t, f.vectors.All(), 2)
}

func TestIngestionService_BatchWriteFailure(t *testing.T) {
	f := newIngestionFixture()
	f.vectors.FailBatch = func([]*domain.Chunk) error {
		return errors.New("write batch of 3: connection reset by peer")
	}
	key := f.storeTranscript(t, "t-1", words("w", 1200))

	res, err := f.svc.Ingest(context.Background(), key, false)
	require.Error(t, err, "a failed transaction aborts the run")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Equal(t, 0, res.ProcessedCount)
	assert.Contains(t, res.ErrorDetail, "connection reset")
	assert.Empty(t, f.vectors.All())
}

func TestIngestionService_FailedRowsNotCountedAsMissing(t *testing.T) {
	f := newIngestionFixture()
	f.embedder.NilFor = func(text string) bool { return strings.HasPrefix(text, "w450 ") }
	f.vectors.FailChunk = func(c *domain.Chunk) bool { return c.Index == 1 }
	key := f.storeTranscript(t, "t-1", words("w", 1200))

	res, err := f.svc.Ingest(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, 0, res.FailedEmbeddings, "the vectorless chunk was never stored")
}

func TestIngestionService_ExtractionFailure(t *testing.T) {
	f := newIngestionFixture()
	f.extract.ExtractFn = func(data []byte, hint string) (*domain.ExtractedText, error) {
		return nil, errors.New("corrupt archive")
	}
	key := f.storeTranscript(t, "t-1", "irrelevant")

	res, err := f.svc.Ingest(context.Background(), key, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Equal(t, 0, res.ProcessedCount)
	assert.Contains(t, res.ErrorDetail, "corrupt archive")
	assert.Empty(t, f.vectors.All())
}

func TestIngestionService_LockHeld(t *testing.T) {
	f := newIngestionFixture()
	key := f.storeTranscript(t, "t-1", words("w", 100))
	f.lock.SetLockHeld("ingest:transcript:t-1", time.Minute)

	_, err := f.svc.Ingest(context.Background(), key, false)
	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
	assert.Empty(t, f.vectors.All())
}

func TestIngestionService_Notes(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	key := domain.SourceKey{Kind: domain.SourceKindNote, ID: "n-1"}
	require.NoError(t, f.sources.Save(ctx, &domain.SourceDocument{
		SourceDescriptor: domain.SourceDescriptor{Key: key, ClassID: "class-7"},
		Note: &domain.NoteContent{
			Summary:   "Fractions compare parts of a whole.",
			KeyPoints: []string{"Equivalent fractions", "Common denominators"},
			QAPairs:   []domain.QAPair{{Question: "What is 1/2 + 1/4?", Answer: "3/4"}},
		},
	}))

	res, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.ProcessedCount)

	chunks := f.vectors.All()
	require.Len(t, chunks, 4)
	assert.Equal(t, domain.ContentTypeNoteSection, chunks[0].ContentType)
	assert.Equal(t, "n-1", chunks[0].Provenance.NoteID)
	assert.Equal(t, "Q: What is 1/2 + 1/4?\nA: 3/4", chunks[3].Text)
}

func TestIngestionService_Submit(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	doc := &domain.SourceDocument{
		SourceDescriptor: domain.SourceDescriptor{
			Key:      domain.SourceKey{Kind: domain.SourceKindBook, ID: "b-1"},
			Filename: "book.txt",
		},
		Content: []byte(words("w", 50)),
	}

	job, err := f.svc.Submit(ctx, doc, true)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusNotStarted, job.Status)
	assert.True(t, job.Force)

	tasks := f.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskTypeIngestSource, tasks[0].Type)
	assert.Equal(t, job.ID, tasks[0].JobID())
	assert.Equal(t, "book:b-1", tasks[0].SourceKey())

	_, err = f.sources.Get(ctx, doc.Key)
	require.NoError(t, err, "source stored for the worker")

	// The worker picks it up
	res, err := f.svc.RunJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)

	latest, err := f.svc.LatestJob(ctx, doc.Key)
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)
}

func TestIngestionService_Submit_Invalid(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		doc  *domain.SourceDocument
	}{
		{"missing id", &domain.SourceDocument{
			SourceDescriptor: domain.SourceDescriptor{Key: domain.SourceKey{Kind: domain.SourceKindBook}},
			Content:          []byte("x"),
		}},
		{"no content", &domain.SourceDocument{
			SourceDescriptor: domain.SourceDescriptor{Key: domain.SourceKey{Kind: domain.SourceKindBook, ID: "b"}},
		}},
		{"notes on a transcript", &domain.SourceDocument{
			SourceDescriptor: domain.SourceDescriptor{Key: domain.SourceKey{Kind: domain.SourceKindTranscript, ID: "t"}},
			Note:             &domain.NoteContent{Summary: "s"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.doc, false)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Empty(t, f.queue.Tasks())
}

func TestIngestionService_Submit_EnqueueFailure(t *testing.T) {
	f := newIngestionFixture()
	f.queue.EnqueueFn = func(task *domain.Task) error { return errors.New("redis down") }
	doc := &domain.SourceDocument{
		SourceDescriptor: domain.SourceDescriptor{Key: domain.SourceKey{Kind: domain.SourceKindPost, ID: "p-1"}},
		Content:          []byte("hello"),
	}

	_, err := f.svc.Submit(context.Background(), doc, false)
	require.Error(t, err)

	latest, err := f.svc.LatestJob(context.Background(), doc.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, latest.Status)
}

func TestIngestionService_Delete(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	key := f.storeTranscript(t, "t-1", words("w", 1200))
	_, err := f.svc.Ingest(ctx, key, false)
	require.NoError(t, err)

	n, err := f.svc.Delete(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, f.vectors.All())

	_, err = f.sources.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Delete(ctx, domain.SourceKey{Kind: domain.SourceKindNote})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
