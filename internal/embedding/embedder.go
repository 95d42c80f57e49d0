// Package embedding provides text and image embedding via the CLIP sidecar service.
package embedding

import "context"

// Embedder produces vector embeddings for text and images in a shared CLIP
// space. Outputs are unit-normalized and batch order matches input order.
type Embedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
	EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Captioner answers visual questions about an image. Used at index time for
// metadata extraction. Callers treat a failure as an empty answer rather than
// aborting the indexing of the image.
type Captioner interface {
	Describe(ctx context.Context, image []byte, question string) (string, error)
}
