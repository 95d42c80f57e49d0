package refine

import (
	"errors"
	"fmt"
)

// Errors callers can act on. Per-item vector fetch failures are logged and
// skipped, never surfaced.
var (
	// ErrEmptyFeedback: the request carried no feedback text, liked ids, or
	// disliked ids.
	ErrEmptyFeedback = errors.New("no feedback provided: supply feedback text, liked ids, or disliked ids")

	// ErrNoPriorSearch: feedback was requested for a session that has not
	// searched yet.
	ErrNoPriorSearch = errors.New("no previous search found for session; search first")
)

// QueryError wraps a fatal backend call failure: embedding the query or
// feedback text, or running the search against the index. Fatal for the call;
// the underlying cause is preserved for errors.Is / errors.As.
type QueryError struct {
	Err error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("backend query failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error {
	return e.Err
}
