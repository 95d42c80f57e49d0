package models

// ItemAttributes is the stored payload of an indexed image.
type ItemAttributes struct {
	File    string `json:"file"`
	Caption string `json:"caption,omitempty"`
	Species string `json:"species,omitempty"`
	// Extra holds the JSON-encoded VQA metadata answers captured at index time.
	Extra string `json:"extra,omitempty"`
}

// RankedItem is a single search hit. Score is similarity (higher = more relevant).
type RankedItem struct {
	ID         string          `json:"id"`
	Score      float64         `json:"score"`
	Attributes *ItemAttributes `json:"attributes"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results    []*RankedItem `json:"results"`
	UsedVector []float32     `json:"used_vector"`
}

// FeedbackResponse is the response for a feedback request. TurnFeedbackVector is
// the fused signal of this turn; when the turn carried no positive signal it
// mirrors RefinedVector so the field is always populated.
type FeedbackResponse struct {
	Results            []*RankedItem `json:"results"`
	RefinedVector      []float32     `json:"refined_vector"`
	TurnFeedbackVector []float32     `json:"turn_feedback_vector"`
}

// CaptionHit is a keyword match against indexed captions and attributes.
type CaptionHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
