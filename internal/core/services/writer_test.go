package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven/mocks"
)

func writerChunk(i int, embedded bool) *domain.Chunk {
	c := &domain.Chunk{ID: fmt.Sprintf("c-%d", i), Index: i, Text: "text"}
	if embedded {
		c.Embedding = []float32{1, 0}
	}
	return c
}

func TestRowWriteErrors(t *testing.T) {
	rowA := &domain.StoreWriteError{ChunkID: "a", Err: errors.New("bad row")}
	rowB := &domain.StoreWriteError{ChunkID: "b", Err: errors.New("bad row")}

	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"single row", rowA, []string{"a"}},
		{"joined rows", errors.Join(rowA, rowB), []string{"a", "b"}},
		{"wrapped row", fmt.Errorf("upsert: %w", rowA), []string{"a"}},
		{"transaction", errors.New("write batch of 2: driver: bad connection"), nil},
		{"row and transaction", errors.Join(rowA, errors.New("commit failed")), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, re := range rowWriteErrors(tt.err) {
				got = append(got, re.ChunkID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunkWriter_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("row failures are counted", func(t *testing.T) {
		store := mocks.NewMockVectorStore()
		store.FailChunk = func(c *domain.Chunk) bool { return c.Index == 0 }
		w := newChunkWriter(store, 10, slog.Default())

		require.NoError(t, w.add(ctx, writerChunk(0, false)))
		require.NoError(t, w.add(ctx, writerChunk(1, false)))
		require.NoError(t, w.add(ctx, writerChunk(2, true)))
		require.NoError(t, w.flush(ctx))

		assert.Equal(t, 2, w.written)
		assert.Equal(t, 1, w.writeFailures)
		assert.Equal(t, 1, w.missing, "only stored chunks count as missing a vector")
	})

	t.Run("transaction failure is returned", func(t *testing.T) {
		store := mocks.NewMockVectorStore()
		store.FailBatch = func([]*domain.Chunk) error {
			return errors.New("write batch of 2: driver: bad connection")
		}
		w := newChunkWriter(store, 2, slog.Default())
		flushed := 0
		w.onFlush = func(context.Context) { flushed++ }

		require.NoError(t, w.add(ctx, writerChunk(0, false)))
		err := w.add(ctx, writerChunk(1, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad connection")
		assert.Equal(t, 0, w.written)
		assert.Equal(t, 0, w.missing)
		assert.Equal(t, 0, flushed)
	})
}
