package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/mirusearch/miru/pkg/vecmath"
)

// MockEmbedder is a deterministic embedder for tests. The same text or image
// bytes always produce the same unit-normalized vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of
// the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) fromSeed(seed uint64) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed%10007)*float64(i+1))*0.1 + 0.01)
	}
	return vecmath.Normalize(emb)
}

// EmbedText returns deterministic embeddings derived from each text's hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		out[i] = e.fromSeed(h.Sum64())
	}
	return out, nil
}

// EmbedImages returns deterministic embeddings derived from each image's hash.
func (e *MockEmbedder) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, img := range images {
		h := fnv.New64a()
		_, _ = h.Write(img)
		out[i] = e.fromSeed(h.Sum64())
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
