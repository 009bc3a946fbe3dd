package services

import (
	"fmt"
	"strings"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven/mocks"
	"github.com/tamgam-edu/diya-core/internal/runtime"
)

// words returns n distinct space-separated words with a prefix.
func words(prefix string, n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func newTestServices(embedder *mocks.MockEmbeddingService) *runtime.Services {
	svc := runtime.NewServices(domain.NewRuntimeConfig("memory", 8))
	if embedder != nil {
		svc.SetEmbeddingService(embedder)
	}
	return svc
}
