package index

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/mirusearch/miru/internal/models"
)

// Payload keys stored with each point.
const (
	payloadFile    = "file"
	payloadCaption = "caption"
	payloadSpecies = "species"
	payloadExtra   = "extra"
)

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	// URL is the Qdrant server address (e.g. "http://localhost:6334").
	URL string

	// Collection is the name of the collection to search.
	Collection string

	// APIKey is an optional API key for authentication.
	APIKey string
}

// QdrantIndex implements SearchIndex backed by Qdrant.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex creates a Qdrant-backed index.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	parsed := cfg.URL
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "https://" + parsed
	}
	u, err := url.Parse(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

// Query implements SearchIndex.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]*models.RankedItem, error) {
	limitUint64 := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint64,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	results := make([]*models.RankedItem, 0, len(points))
	for _, point := range points {
		results = append(results, &models.RankedItem{
			ID:         pointIDString(point.Id),
			Score:      float64(point.Score),
			Attributes: attributesFromPayload(point.Payload),
		})
	}
	return results, nil
}

// FetchVector implements SearchIndex.
func (q *QdrantIndex) FetchVector(ctx context.Context, id string) ([]float32, *models.ItemAttributes, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant get failed: %w", err)
	}
	if len(points) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	point := points[0]
	vecOut := point.Vectors.GetVector()
	if vecOut == nil {
		return nil, nil, fmt.Errorf("point %s has no vector", id)
	}
	return vecOut.Data, attributesFromPayload(point.Payload), nil
}

// Upsert implements SearchIndex.
func (q *QdrantIndex) Upsert(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadFile:    p.Attributes.File,
				payloadCaption: p.Attributes.Caption,
				payloadSpecies: p.Attributes.Species,
				payloadExtra:   p.Attributes.Extra,
			}),
		}
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         structs,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// EnsureCollection implements SearchIndex. Cosine distance over unit vectors.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection failed: %w", err)
	}
	return nil
}

// Count implements SearchIndex.
func (q *QdrantIndex) Count(ctx context.Context) (uint64, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return count, nil
}

// Delete implements SearchIndex.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

// Close implements SearchIndex.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// buildFilter converts a Filter to a Qdrant filter; nil when unrestricted.
func buildFilter(filter Filter) *qdrant.Filter {
	if len(filter.Species) == 0 {
		return nil
	}
	var match *qdrant.Match
	if len(filter.Species) == 1 {
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: filter.Species[0]}}
	} else {
		keywords := make([]string, len(filter.Species))
		copy(keywords, filter.Species)
		match = &qdrant.Match{
			MatchValue: &qdrant.Match_Keywords{
				Keywords: &qdrant.RepeatedStrings{Strings: keywords},
			},
		}
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   payloadSpecies,
					Match: match,
				},
			},
		}},
	}
}

// pointIDString extracts a string id from a Qdrant point id.
func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// attributesFromPayload converts a Qdrant payload to item attributes.
func attributesFromPayload(payload map[string]*qdrant.Value) *models.ItemAttributes {
	attrs := &models.ItemAttributes{}
	if payload == nil {
		return attrs
	}
	if v, ok := payload[payloadFile]; ok {
		attrs.File = v.GetStringValue()
	}
	if v, ok := payload[payloadCaption]; ok {
		attrs.Caption = v.GetStringValue()
	}
	if v, ok := payload[payloadSpecies]; ok {
		attrs.Species = v.GetStringValue()
	}
	if v, ok := payload[payloadExtra]; ok {
		attrs.Extra = v.GetStringValue()
	}
	return attrs
}

// Compile-time check that QdrantIndex implements SearchIndex.
var _ SearchIndex = (*QdrantIndex)(nil)
