// Package search orchestrates embedding, index queries, session state, and
// relevance feedback into the service-level search operations.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mirusearch/miru/internal/embedding"
	"github.com/mirusearch/miru/internal/index"
	"github.com/mirusearch/miru/internal/models"
	"github.com/mirusearch/miru/internal/refine"
	"github.com/mirusearch/miru/internal/session"
	"github.com/mirusearch/miru/pkg/vecmath"
)

// speciesKeywords maps query words to canonical species labels. Order
// matters: the first matching word wins.
var speciesKeywords = []struct {
	word    string
	species string
}{
	{"cat", "cat"}, {"cats", "cat"}, {"kitten", "cat"}, {"feline", "cat"},
	{"dog", "dog"}, {"dogs", "dog"}, {"puppy", "dog"}, {"canine", "dog"},
	{"bird", "bird"}, {"birds", "bird"},
	{"horse", "horse"}, {"horses", "horse"},
	{"cow", "cow"}, {"cows", "cow"}, {"cattle", "cow"},
	{"sheep", "sheep"},
	{"elephant", "elephant"}, {"elephants", "elephant"},
	{"butterfly", "butterfly"}, {"butterflies", "butterfly"},
}

// InferSpecies returns the species label implied by the query text, or ""
// when no species word appears. Matching is per whitespace-separated word,
// case-insensitive, first match wins.
func InferSpecies(query string) string {
	words := strings.Fields(strings.ToLower(query))
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,!?;:\"'()")] = true
	}
	for _, kw := range speciesKeywords {
		if wordSet[kw.word] {
			return kw.species
		}
	}
	return ""
}

// ImageQuery is a search by uploaded image bytes.
type ImageQuery struct {
	SessionID     string
	UserID        string
	Filename      string
	Data          []byte
	TopK          int
	SpeciesFilter []string
}

// Validate checks required fields and normalizes TopK and UserID.
func (q *ImageQuery) Validate() error {
	if q.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if len(q.Data) == 0 {
		return fmt.Errorf("image data is required")
	}
	if q.TopK <= 0 {
		q.TopK = models.DefaultTopK
	}
	if q.TopK > models.MaxTopK {
		q.TopK = models.MaxTopK
	}
	if q.UserID == "" {
		q.UserID = "anonymous"
	}
	return nil
}

// Stats reports the state of the backing index.
type Stats struct {
	TotalItems uint64 `json:"total_items"`
	Dimensions int    `json:"dimensions"`
}

// Service ties the embedder, index, session store, and refinement engine
// together.
type Service struct {
	embedder embedding.Embedder
	index    index.SearchIndex
	sessions session.Store
	engine   *refine.Engine
	logger   *zap.Logger
}

// NewService creates a search service.
func NewService(embedder embedding.Embedder, idx index.SearchIndex, sessions session.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		index:    idx,
		sessions: sessions,
		engine:   refine.NewEngine(embedder, idx, logger),
		logger:   logger,
	}
}

// Search runs a text or image-vector query, stores the used vector as the
// session's current query vector, and records the search in the user's
// history.
func (s *Service) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		qv        []float32
		queryType string
	)
	if len(req.QueryImageVector) > 0 {
		qv = vecmath.Normalize(req.QueryImageVector)
		queryType = models.QueryTypeImage
	} else {
		embedded, err := s.embedder.EmbedText(ctx, []string{req.QueryText})
		if err != nil {
			return nil, &refine.QueryError{Err: fmt.Errorf("embed query: %w", err)}
		}
		qv = embedded[0]
		queryType = models.QueryTypeText
	}

	filter := index.Filter{Species: req.SpeciesFilter}
	if len(filter.Species) == 0 {
		if sp := InferSpecies(req.QueryText); sp != "" {
			s.logger.Info("applying species filter inferred from query",
				zap.String("species", sp))
			filter.Species = []string{sp}
		}
	}

	results, err := s.index.Query(ctx, qv, filter, req.TopK)
	if err != nil {
		return nil, &refine.QueryError{Err: err}
	}

	if err := s.sessions.SetQueryVector(ctx, req.SessionID, qv); err != nil {
		return nil, fmt.Errorf("store session vector: %w", err)
	}
	s.recordHistory(ctx, req.SessionID, req.UserID, req.QueryText, queryType, results)

	return &models.SearchResponse{Results: results, UsedVector: qv}, nil
}

// SearchByImage embeds the uploaded image and searches with the resulting
// vector. The history entry is recorded as "[Image: <name>]".
func (s *Service) SearchByImage(ctx context.Context, q *ImageQuery) (*models.SearchResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	embedded, err := s.embedder.EmbedImages(ctx, [][]byte{q.Data})
	if err != nil {
		return nil, &refine.QueryError{Err: fmt.Errorf("embed image: %w", err)}
	}
	qv := embedded[0]

	results, err := s.index.Query(ctx, qv, index.Filter{Species: q.SpeciesFilter}, q.TopK)
	if err != nil {
		return nil, &refine.QueryError{Err: err}
	}

	if err := s.sessions.SetQueryVector(ctx, q.SessionID, qv); err != nil {
		return nil, fmt.Errorf("store session vector: %w", err)
	}
	label := fmt.Sprintf("[Image: %s]", q.Filename)
	s.recordHistory(ctx, q.SessionID, q.UserID, label, models.QueryTypeImage, results)

	return &models.SearchResponse{Results: results, UsedVector: qv}, nil
}

// Feedback applies one turn of relevance feedback to the session's query
// vector and persists the refined vector for the next turn.
func (s *Service) Feedback(ctx context.Context, req *models.FeedbackRequest) (*models.FeedbackResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prev, err := s.sessions.QueryVector(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session vector: %w", err)
	}

	out, err := s.engine.Refine(ctx, prev, &refine.Signal{
		FeedbackText: req.FeedbackText,
		LikedIDs:     req.LikedIDs,
		DislikedIDs:  req.DislikedIDs,
		WText:        *req.WText,
		WLike:        *req.WLike,
		Alpha:        *req.Alpha,
		TopK:         req.TopK,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SetQueryVector(ctx, req.SessionID, out.RefinedVector); err != nil {
		return nil, fmt.Errorf("store refined vector: %w", err)
	}

	return &models.FeedbackResponse{
		Results:            out.Results,
		RefinedVector:      out.RefinedVector,
		TurnFeedbackVector: out.TurnVector,
	}, nil
}

// History returns up to limit entries for the user, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.sessions.History(ctx, userID, limit)
}

// Analytics aggregates search history across all users: totals, query-type
// counts, and the ten most frequent text queries. Image uploads are excluded
// from the top-query ranking.
func (s *Service) Analytics(ctx context.Context) (*models.Analytics, error) {
	userIDs, err := s.sessions.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	a := &models.Analytics{
		QueryTypes: map[string]int{models.QueryTypeText: 0, models.QueryTypeImage: 0},
	}
	a.TotalUsers = len(userIDs)
	queryCounts := make(map[string]int)
	for _, uid := range userIDs {
		entries, err := s.sessions.History(ctx, uid, session.HistoryCap)
		if err != nil {
			s.logger.Warn("failed to load history for analytics",
				zap.String("user_id", uid), zap.Error(err))
			continue
		}
		a.TotalSearches += len(entries)
		for _, e := range entries {
			a.QueryTypes[e.QueryType]++
			if e.QueryText != "" && !strings.HasPrefix(e.QueryText, "[Image:") {
				queryCounts[e.QueryText]++
			}
		}
	}

	top := make([]models.QueryCount, 0, len(queryCounts))
	for q, c := range queryCounts {
		top = append(top, models.QueryCount{Query: q, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Query < top[j].Query
	})
	if len(top) > 10 {
		top = top[:10]
	}
	a.TopQueries = top
	return a, nil
}

// Stats reports index size and vector dimensionality.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count points: %w", err)
	}
	return &Stats{TotalItems: count, Dimensions: s.embedder.Dimensions()}, nil
}

// recordHistory appends a history entry, logging instead of failing: history
// is best-effort and must not break a successful search.
func (s *Service) recordHistory(ctx context.Context, sessionID, userID, queryText, queryType string, results []*models.RankedItem) {
	entry := &models.HistoryEntry{
		SessionID:  sessionID,
		UserID:     userID,
		QueryText:  queryText,
		QueryType:  queryType,
		Timestamp:  time.Now().UTC(),
		NumResults: len(results),
	}
	if len(results) > 0 {
		entry.TopResultID = results[0].ID
	}
	if err := s.sessions.AppendHistory(ctx, userID, entry); err != nil {
		s.logger.Warn("failed to record search history",
			zap.String("user_id", userID), zap.Error(err))
	}
}
