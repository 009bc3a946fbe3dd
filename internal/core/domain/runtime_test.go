package domain

import (
	"sync"
	"testing"
)

func TestNewRuntimeConfig(t *testing.T) {
	config := NewRuntimeConfig("postgres", 768)

	if config.QueueBackend != "postgres" {
		t.Errorf("expected postgres, got %s", config.QueueBackend)
	}
	if config.EmbeddingDimensions() != 768 {
		t.Errorf("expected 768 dimensions, got %d", config.EmbeddingDimensions())
	}
	if config.MockProvider() {
		t.Error("expected mock provider to be off initially")
	}
}

func TestRuntimeConfig_MockProvider(t *testing.T) {
	config := NewRuntimeConfig("redis", 768)

	config.SetMockProvider(true)
	if !config.MockProvider() {
		t.Error("expected mock provider after setting")
	}
	config.SetMockProvider(false)
	if config.MockProvider() {
		t.Error("expected mock provider cleared")
	}
}

func TestRuntimeConfig_ConcurrentAccess(t *testing.T) {
	config := NewRuntimeConfig("redis", 768)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			config.SetMockProvider(v)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = config.MockProvider()
		}()
	}
	wg.Wait()
}
