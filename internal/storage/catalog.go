// Package storage persists the indexing catalog: which corpus files have been
// embedded, under which point id, and at what modification time.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when a path has no catalog record.
var ErrRecordNotFound = errors.New("catalog record not found")

// Record describes one indexed corpus file.
type Record struct {
	Path      string
	PointID   string
	Species   string
	ModTime   time.Time
	Size      int64
	IndexedAt time.Time
}

// Changed reports whether the file differs from what the record captured.
func (r *Record) Changed(modTime time.Time, size int64) bool {
	return !r.ModTime.Equal(modTime) || r.Size != size
}

// Catalog tracks indexed files so re-indexing can skip unchanged ones and
// deletions can be mapped back to point ids.
type Catalog interface {
	// Upsert inserts or replaces the record for its path.
	Upsert(ctx context.Context, rec *Record) error

	// BatchUpsert inserts or replaces records in one transaction.
	BatchUpsert(ctx context.Context, recs []*Record) error

	// Get returns the record for a path, or ErrRecordNotFound.
	Get(ctx context.Context, path string) (*Record, error)

	// Delete removes the record for a path. Missing paths are not an error.
	Delete(ctx context.Context, path string) error

	// List returns all records ordered by path.
	List(ctx context.Context) ([]*Record, error)

	// Count returns the number of cataloged files.
	Count(ctx context.Context) (int64, error)

	Close() error
}
