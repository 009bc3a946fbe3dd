package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven/mocks"
)

func putUnembedded(t *testing.T, store *mocks.MockVectorStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c, err := domain.NewChunk(domain.ChunkParams{
			Provenance:  domain.Provenance{TranscriptID: "t"},
			ContentType: domain.ContentTypeTranscript,
			Text:        words("r", i+1),
			Index:       i,
		})
		require.NoError(t, err)
		store.Put(c)
	}
}

func TestReembedder_Run(t *testing.T) {
	store := mocks.NewMockVectorStore()
	embedder := mocks.NewMockEmbeddingService()
	putUnembedded(t, store, 7)
	lock := mocks.NewMockDistributedLock()

	r := NewReembedder(ReembedderConfig{
		Vectors:   store,
		Services:  newTestServices(embedder),
		Lock:      lock,
		BatchSize: 3,
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, res.Embedded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 3, res.Batches)

	st, _ := store.Stats(context.Background(), "")
	assert.True(t, st.IsReady())
	assert.False(t, lock.IsHeld(ReembedLockName))
}

func TestReembedder_StopsWithoutProgress(t *testing.T) {
	store := mocks.NewMockVectorStore()
	embedder := mocks.NewMockEmbeddingService()
	embedder.NilFor = func(string) bool { return true }
	putUnembedded(t, store, 4)

	r := NewReembedder(ReembedderConfig{Vectors: store, Services: newTestServices(embedder), BatchSize: 10})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Batches, "a batch with no vectors ends the pass")
	assert.Equal(t, 4, res.Failed)
	assert.Zero(t, res.Embedded)
}

func TestReembedder_MaxBatches(t *testing.T) {
	store := mocks.NewMockVectorStore()
	putUnembedded(t, store, 10)

	r := NewReembedder(ReembedderConfig{
		Vectors:    store,
		Services:   newTestServices(mocks.NewMockEmbeddingService()),
		BatchSize:  2,
		MaxBatches: 2,
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Embedded)
	assert.Equal(t, 2, res.Batches)
}

func TestReembedder_LockHeld(t *testing.T) {
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld(ReembedLockName, time.Minute)

	r := NewReembedder(ReembedderConfig{
		Vectors:  mocks.NewMockVectorStore(),
		Services: newTestServices(mocks.NewMockEmbeddingService()),
		Lock:     lock,
	})

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
}

func TestReembedder_NoEmbeddingService(t *testing.T) {
	r := NewReembedder(ReembedderConfig{Vectors: mocks.NewMockVectorStore(), Services: newTestServices(nil)})

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}
