package models

import "time"

// QueryTypeText and QueryTypeImage classify history entries by query kind.
const (
	QueryTypeText  = "text"
	QueryTypeImage = "image"
)

// HistoryEntry records one search for a user. Entries are append-only and
// capped per user; newest first.
type HistoryEntry struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	QueryText   string    `json:"query_text,omitempty"`
	QueryType   string    `json:"query_type"`
	Timestamp   time.Time `json:"timestamp"`
	NumResults  int       `json:"num_results"`
	TopResultID string    `json:"top_result_id,omitempty"`
}

// Analytics aggregates search history across all users.
type Analytics struct {
	TotalSearches int            `json:"total_searches"`
	TotalUsers    int            `json:"total_users"`
	QueryTypes    map[string]int `json:"query_types"`
	TopQueries    []QueryCount   `json:"top_queries"`
}

// QueryCount is a query text with its occurrence count.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}
