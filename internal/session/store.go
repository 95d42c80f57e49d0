// Package session provides per-session query-vector state and per-user search history.
package session

import (
	"context"

	"github.com/mirusearch/miru/internal/models"
)

// HistoryCap is the maximum number of history entries kept per user.
const HistoryCap = 100

// Store holds one current query vector per session and a capped search
// history per user. Vector writes are pure overwrites, last write wins.
type Store interface {
	// QueryVector returns the session's current query vector, or nil when the
	// session has no prior search (not an error).
	QueryVector(ctx context.Context, sessionID string) ([]float32, error)

	// SetQueryVector overwrites the session's current query vector.
	SetQueryVector(ctx context.Context, sessionID string, vector []float32) error

	// AppendHistory prepends an entry to the user's history, trimming to HistoryCap.
	AppendHistory(ctx context.Context, userID string, entry *models.HistoryEntry) error

	// History returns up to limit entries for the user, newest first.
	History(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error)

	// UserIDs returns the ids of all users with recorded history.
	UserIDs(ctx context.Context) ([]string, error)

	Close() error
}
