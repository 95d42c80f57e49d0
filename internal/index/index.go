// Package index provides vector similarity search over the indexed image corpus.
package index

import (
	"context"
	"errors"

	"github.com/mirusearch/miru/internal/models"
)

// ErrPointNotFound is returned by FetchVector when no point has the given id.
var ErrPointNotFound = errors.New("point not found")

// Filter restricts a query to items whose species matches any of the given
// labels (logical OR). Matching is exact and case-sensitive; the indexer
// lowercases labels at index time so the vocabulary is uniform.
type Filter struct {
	Species []string
}

// Point is an image embedding with its stored attributes.
type Point struct {
	ID         string
	Vector     []float32
	Attributes models.ItemAttributes
}

// SearchIndex is the vector database the service queries and feeds.
type SearchIndex interface {
	// Query returns the nearest neighbors of vector, most similar first.
	Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]*models.RankedItem, error)

	// FetchVector returns the stored vector and attributes for a point id.
	FetchVector(ctx context.Context, id string) ([]float32, *models.ItemAttributes, error)

	// Upsert inserts or replaces points in batch.
	Upsert(ctx context.Context, points []*Point) error

	// EnsureCollection creates the backing collection when it does not exist.
	EnsureCollection(ctx context.Context, dimensions int) error

	// Count returns the number of indexed points.
	Count(ctx context.Context) (uint64, error)

	// Delete removes points by id.
	Delete(ctx context.Context, ids []string) error

	Close() error
}
