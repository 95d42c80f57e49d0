// Package models defines core data structures for search, feedback, and history.
package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultTopK is the result count used when a request leaves top_k unset.
	DefaultTopK = 20
	// MaxTopK caps the result count for any single request.
	MaxTopK = 100

	// DefaultWText and DefaultWLike weight the text and liked-mean vectors
	// when a feedback turn leaves them unset.
	DefaultWText = 0.5
	DefaultWLike = 0.5
	// DefaultAlpha blends the turn vector with the previous query vector.
	DefaultAlpha = 0.4
)

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}

// SearchRequest is a text or image-vector search within a session.
// Exactly one of QueryText / QueryImageVector must be supplied.
type SearchRequest struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id,omitempty"`
	QueryText        string    `json:"query_text,omitempty"`
	QueryImageVector []float32 `json:"query_image_vector,omitempty"`
	TopK             int       `json:"top_k,omitempty"`
	SpeciesFilter    []string  `json:"species_filter,omitempty"`
}

// Validate checks required fields and normalizes TopK and UserID.
func (r *SearchRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	hasText := strings.TrimSpace(r.QueryText) != ""
	hasVector := len(r.QueryImageVector) > 0
	if hasText == hasVector {
		return fmt.Errorf("provide exactly one of query_text or query_image_vector")
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	if r.UserID == "" {
		r.UserID = "anonymous"
	}
	return nil
}

// FeedbackRequest carries one turn of relevance feedback for a session.
type FeedbackRequest struct {
	SessionID    string   `json:"session_id"`
	FeedbackText string   `json:"feedback_text,omitempty"`
	LikedIDs     []string `json:"liked_ids"`
	DislikedIDs  []string `json:"disliked_ids"`
	// WText, WLike, and Alpha are pointers so an explicit zero in the request
	// body is distinguishable from an absent field; defaults apply only when
	// the field is absent.
	WText *float64 `json:"w_text,omitempty"`
	WLike *float64 `json:"w_like,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`
	// Gamma is deprecated. Earlier designs subtracted gamma-scaled disliked
	// vectors from the query; disliked items are now excluded by filtering
	// instead. The field is accepted for compatibility and has no effect.
	Gamma float64 `json:"gamma,omitempty"`
	TopK  int     `json:"top_k,omitempty"`
}

// Validate checks required fields and applies weight defaults. The presence of
// usable feedback content is the refinement engine's concern, not validated here.
func (r *FeedbackRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.WText == nil {
		r.WText = Float64(DefaultWText)
	}
	if r.WLike == nil {
		r.WLike = Float64(DefaultWLike)
	}
	if r.Alpha == nil {
		r.Alpha = Float64(DefaultAlpha)
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	return nil
}
