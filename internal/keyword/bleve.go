// Package keyword provides a Bleve full-text index over image captions and
// metadata. It backs the caption lookup endpoint only; keyword scores are
// never fused into the vector ranking.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/mirusearch/miru/internal/models"
)

// CaptionDoc is the indexed text of one image.
type CaptionDoc struct {
	Caption string `json:"caption"`
	Species string `json:"species"`
	Extra   string `json:"extra"`
}

// CaptionIndex is the keyword lookup over indexed captions.
type CaptionIndex interface {
	Index(ctx context.Context, id string, doc *CaptionDoc) error
	Search(ctx context.Context, query string, limit int) ([]*models.CaptionHit, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// BleveIndex implements CaptionIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func captionMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so caption words
	// match exactly as written.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("caption", textFieldMapping)
	docMapping.AddFieldMappingsAt("species", textFieldMapping)
	docMapping.AddFieldMappingsAt("extra", textFieldMapping)
	im.AddDocumentMapping("caption", docMapping)
	im.DefaultType = "caption"
	im.DefaultMapping = docMapping

	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused so keyword search survives incremental re-indexing; remove
// the index directory to force a rebuild after a mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, captionMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex creates an in-memory index for tests and dry runs.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(captionMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes one image's caption text under its point id.
func (b *BleveIndex) Index(ctx context.Context, id string, doc *CaptionDoc) error {
	return b.index.Index(id, doc)
}

// Search runs a match query over caption, species, and extra metadata and
// returns up to limit hits, best first.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*models.CaptionHit, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*models.CaptionHit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &models.CaptionHit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes an image from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// Compile-time check that BleveIndex implements CaptionIndex.
var _ CaptionIndex = (*BleveIndex)(nil)
