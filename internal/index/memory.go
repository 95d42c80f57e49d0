package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mirusearch/miru/internal/models"
	"github.com/mirusearch/miru/pkg/vecmath"
)

// MemoryIndex is an in-memory SearchIndex using brute-force inner product
// search. Suitable for tests and small development corpora.
type MemoryIndex struct {
	dimensions int
	points     map[string]*Point
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		points:     make(map[string]*Point),
	}, nil
}

// Query implements SearchIndex. Score is inner product (cosine similarity for
// normalized vectors), most similar first.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]*models.RankedItem, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return nil, nil
	}

	speciesSet := make(map[string]bool, len(filter.Species))
	for _, s := range filter.Species {
		speciesSet[s] = true
	}

	results := make([]*models.RankedItem, 0, len(m.points))
	for _, p := range m.points {
		if len(speciesSet) > 0 && !speciesSet[p.Attributes.Species] {
			continue
		}
		attrs := p.Attributes
		results = append(results, &models.RankedItem{
			ID:         p.ID,
			Score:      vecmath.InnerProduct(vector, p.Vector),
			Attributes: &attrs,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// FetchVector implements SearchIndex.
func (m *MemoryIndex) FetchVector(ctx context.Context, id string) ([]float32, *models.ItemAttributes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)
	attrs := p.Attributes
	return vec, &attrs, nil
}

// Upsert implements SearchIndex.
func (m *MemoryIndex) Upsert(ctx context.Context, points []*Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if len(p.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, p.Vector)
		m.points[p.ID] = &Point{ID: p.ID, Vector: vec, Attributes: p.Attributes}
	}
	return nil
}

// EnsureCollection implements SearchIndex. The dimension is fixed at construction.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions != m.dimensions {
		return fmt.Errorf("dimension mismatch: index has %d, requested %d", m.dimensions, dimensions)
	}
	return nil
}

// Count implements SearchIndex.
func (m *MemoryIndex) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.points)), nil
}

// Delete implements SearchIndex.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// Compile-time check that MemoryIndex implements SearchIndex.
var _ SearchIndex = (*MemoryIndex)(nil)
