// Package refine implements Rocchio-style relevance-feedback query refinement.
package refine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mirusearch/miru/internal/embedding"
	"github.com/mirusearch/miru/internal/index"
	"github.com/mirusearch/miru/internal/models"
	"github.com/mirusearch/miru/pkg/vecmath"
)

// Signal is one turn of relevance feedback. At least one of FeedbackText
// (non-blank), LikedIDs, or DislikedIDs must be present.
type Signal struct {
	FeedbackText string
	LikedIDs     []string
	DislikedIDs  []string
	WText        float64
	WLike        float64
	Alpha        float64
	TopK         int
}

// Outcome is the result of a refinement turn. TurnVector always carries a
// value: the fused signal of this turn, or RefinedVector when the turn had no
// positive signal.
type Outcome struct {
	Results         []*models.RankedItem
	RefinedVector   []float32
	TurnVector      []float32
	LikedSpecies    []string
	DislikedSpecies []string
}

// Engine refines a session's query vector from feedback signals. It is a pure
// function of (previous vector, signal, fetched vectors); persisting the
// refined vector is the caller's responsibility.
type Engine struct {
	embedder embedding.Embedder
	index    index.SearchIndex
	logger   *zap.Logger
}

// NewEngine creates a refinement engine with the given collaborators.
func NewEngine(embedder embedding.Embedder, idx index.SearchIndex, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{embedder: embedder, index: idx, logger: logger}
}

// Refine runs one feedback turn and returns the refined vector with the
// re-ranked, filtered result list.
//
// The pipeline: embed feedback text, average liked and disliked item vectors
// (means are not normalized before fusion), fuse the positive signal, blend
// it into the previous vector with alpha, re-query with an over-fetch margin,
// then restrict to liked species and drop disliked ids.
//
// Disliked vectors never modify the query vector; they only drive exclusion.
func (e *Engine) Refine(ctx context.Context, prev []float32, sig *Signal) (*Outcome, error) {
	if len(prev) == 0 {
		return nil, ErrNoPriorSearch
	}
	text := strings.TrimSpace(sig.FeedbackText)
	likedIDs := nonBlank(sig.LikedIDs)
	dislikedIDs := nonBlank(sig.DislikedIDs)
	if text == "" && len(likedIDs) == 0 && len(dislikedIDs) == 0 {
		return nil, ErrEmptyFeedback
	}

	var vText []float32
	if text != "" {
		embedded, err := e.embedder.EmbedText(ctx, []string{text})
		if err != nil {
			return nil, &QueryError{Err: err}
		}
		vText = embedded[0]
	}

	vLike, likedSpecies := e.fetchMean(ctx, likedIDs, "liked")
	_, dislikedSpecies := e.fetchMean(ctx, dislikedIDs, "disliked")

	vTurn := e.fuse(vText, vLike, sig.WText, sig.WLike)

	alpha := sig.Alpha
	if alpha < 0 || alpha > 1 {
		clamped := alpha
		if clamped < 0 {
			clamped = 0
		} else {
			clamped = 1
		}
		e.logger.Warn("alpha out of range, clamping",
			zap.Float64("alpha", alpha), zap.Float64("clamped", clamped))
		alpha = clamped
	}

	vNew := prev
	if vTurn != nil {
		vNew = vecmath.Normalize(vecmath.WeightedSum(
			[][]float32{prev, vTurn},
			[]float64{1 - alpha, alpha},
		))
	}

	// Over-fetch so that dropping disliked ids still leaves topK candidates.
	limit := sig.TopK + 2*len(dislikedIDs)
	results, err := e.index.Query(ctx, vNew, index.Filter{Species: likedSpecies}, limit)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	dislikedSet := make(map[string]bool, len(dislikedIDs))
	for _, id := range dislikedIDs {
		dislikedSet[id] = true
	}
	filtered := make([]*models.RankedItem, 0, sig.TopK)
	for _, r := range results {
		if dislikedSet[r.ID] {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == sig.TopK {
			break
		}
	}

	turn := vTurn
	if turn == nil {
		turn = vNew
	}
	return &Outcome{
		Results:         filtered,
		RefinedVector:   vNew,
		TurnVector:      turn,
		LikedSpecies:    likedSpecies,
		DislikedSpecies: dislikedSpecies,
	}, nil
}

// fuse combines the text and like signals into a single normalized turn
// vector; nil when neither is present.
func (e *Engine) fuse(vText, vLike []float32, wText, wLike float64) []float32 {
	switch {
	case vText != nil && vLike != nil:
		return vecmath.Normalize(vecmath.WeightedSum(
			[][]float32{vText, vLike},
			[]float64{wText, wLike},
		))
	case vText != nil:
		return vecmath.Normalize(vText)
	case vLike != nil:
		return vecmath.Normalize(vLike)
	default:
		return nil
	}
}

// fetchMean fetches each id's stored vector concurrently and returns the
// arithmetic mean (not normalized) with the sorted distinct species labels of
// the fetched items. Individual fetch failures are logged and skipped; when
// every fetch fails the mean is nil.
func (e *Engine) fetchMean(ctx context.Context, ids []string, kind string) ([]float32, []string) {
	if len(ids) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		vectors    [][]float32
		speciesSet = make(map[string]bool)
		wg         sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			vec, attrs, err := e.index.FetchVector(ctx, id)
			if err != nil {
				e.logger.Warn("failed to fetch feedback item vector",
					zap.String("kind", kind), zap.String("id", id), zap.Error(err))
				return
			}
			mu.Lock()
			defer mu.Unlock()
			vectors = append(vectors, vec)
			if attrs != nil && attrs.Species != "" {
				speciesSet[attrs.Species] = true
			}
		}(id)
	}
	wg.Wait()

	if len(vectors) == 0 {
		return nil, nil
	}
	species := make([]string, 0, len(speciesSet))
	for s := range speciesSet {
		species = append(species, s)
	}
	sort.Strings(species)
	return vecmath.Mean(vectors), species
}

// nonBlank returns ids with empty strings removed.
func nonBlank(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
