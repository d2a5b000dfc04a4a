// Package vectordb provides the approximate-nearest-neighbor indexing
// collaborator backed by Qdrant. Chunk vectors are stored as points whose
// payload carries the token range, so search results resolve back to
// chunk identities without holding source text in the index.
package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// Payload keys stored with every chunk point.
const (
	payloadSourceID    = "source_id"
	payloadSourceType  = "source_type"
	payloadStartToken  = "start_token"
	payloadEndToken    = "end_token"
	payloadGranularity = "granularity"
	payloadText        = "text"
)

// QdrantIndex implements the ChunkIndex interface for Qdrant
type QdrantIndex struct {
	config      *QdrantConfig
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
}

var _ interfaces.ChunkIndex = (*QdrantIndex)(nil)

// NewQdrantIndex creates a new Qdrant chunk index client. The client is
// not connected until Connect is called.
func NewQdrantIndex(config *QdrantConfig) (*QdrantIndex, error) {
	if config == nil {
		config = DefaultQdrantConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.WrapError(err, types.ErrorTypeValidation, errors.ErrCodeConfigInvalid, "invalid qdrant config")
	}

	return &QdrantIndex{config: config}, nil
}

// Open creates a Qdrant chunk index and connects it
func Open(ctx context.Context, config *QdrantConfig) (*QdrantIndex, error) {
	index, err := NewQdrantIndex(config)
	if err != nil {
		return nil, err
	}
	if err := index.Connect(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

// Connect establishes the gRPC connection to Qdrant with retry
func (q *QdrantIndex) Connect(ctx context.Context) error {
	address := q.config.Address()

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithTimeout(q.config.ConnectionTimeout),
		grpc.WithBlock(),
	}

	operation := func() error {
		conn, err := grpc.DialContext(ctx, address, opts...)
		if err != nil {
			return fmt.Errorf("failed to connect to qdrant at %s: %w", address, err)
		}

		q.conn = conn
		q.collections = qdrant.NewCollectionsClient(conn)
		q.points = qdrant.NewPointsClient(conn)
		return nil
	}

	retryConfig := backoff.NewExponentialBackOff()
	retryConfig.MaxElapsedTime = time.Duration(q.config.MaxRetries) * q.config.RetryInterval

	if err := backoff.Retry(operation, backoff.WithContext(retryConfig, ctx)); err != nil {
		return errors.NewIndexError("failed to connect to qdrant after retries", err)
	}

	return nil
}

// Connected reports whether the index holds a live connection
func (q *QdrantIndex) Connected() bool {
	return q.conn != nil
}

// Close closes the connection to Qdrant
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	err := q.conn.Close()
	q.conn = nil
	q.collections = nil
	q.points = nil
	return err
}

// HealthCheck verifies the Qdrant connection by listing collections
func (q *QdrantIndex) HealthCheck(ctx context.Context) error {
	if !q.Connected() {
		return errors.NewIndexError("not connected to qdrant", nil)
	}

	_, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return errors.NewIndexError("qdrant health check failed", err)
	}
	return nil
}

// EnsureCollection creates the collection when it does not exist. An
// empty name or non-positive vector size falls back to the configured
// defaults.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if !q.Connected() {
		return errors.NewIndexError("not connected to qdrant", nil)
	}

	name = q.collection(name)
	if vectorSize <= 0 {
		vectorSize = q.config.VectorSize
	}

	exists, err := q.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	distance, err := convertDistanceMetric(q.config.GetDistance())
	if err != nil {
		return err
	}

	req := &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(vectorSize),
					Distance: distance,
				},
			},
		},
		OnDiskPayload: &q.config.OnDiskPayload,
	}

	if _, err := q.collections.Create(ctx, req); err != nil {
		return errors.NewIndexError(fmt.Sprintf("failed to create collection %s", name), err)
	}
	return nil
}

// UpsertChunks inserts or updates chunk points in batches
func (q *QdrantIndex) UpsertChunks(ctx context.Context, collection string, points []types.ChunkPoint) error {
	if !q.Connected() {
		return errors.NewIndexError("not connected to qdrant", nil)
	}
	if len(points) == 0 {
		return nil
	}

	collection = q.collection(collection)

	for i := range points {
		if err := points[i].Chunk.Validate(); err != nil {
			return errors.NewInvalidArgumentError(fmt.Sprintf("invalid chunk at index %d: %v", i, err))
		}
		if len(points[i].Vector) == 0 {
			return errors.NewInvalidArgumentError(fmt.Sprintf("chunk %s has an empty vector", points[i].Chunk.ID))
		}
	}

	batchSize := q.config.BatchSize
	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}

		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, point := range points[start:end] {
			batch = append(batch, chunkPointToStruct(&point))
		}

		req := &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         batch,
		}
		if _, err := q.points.Upsert(ctx, req); err != nil {
			return errors.NewIndexError(fmt.Sprintf("failed to upsert batch starting at %d", start), err)
		}
	}

	return nil
}

// Search returns the chunks most similar to the query vector. A non-empty
// sourceID narrows the search to points of that source.
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector types.EmbeddingVector, limit int, sourceID string) ([]types.SearchHit, error) {
	if !q.Connected() {
		return nil, errors.NewIndexError("not connected to qdrant", nil)
	}
	if len(vector) == 0 {
		return nil, errors.NewInvalidArgumentError("search vector cannot be empty")
	}
	if limit <= 0 {
		limit = q.config.DefaultTopK
	}

	req := &qdrant.SearchPoints{
		CollectionName: q.collection(collection),
		Vector:         vector,
		Limit:          uint64(limit),
		Filter:         sourceFilter(sourceID),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	}
	if q.config.ScoreThreshold > 0 {
		req.ScoreThreshold = &q.config.ScoreThreshold
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, errors.NewIndexError("failed to search points", err)
	}

	hits := make([]types.SearchHit, len(resp.Result))
	for i, point := range resp.Result {
		hits[i] = scoredPointToHit(point)
	}
	return hits, nil
}

// DeleteBySource removes every point belonging to a source
func (q *QdrantIndex) DeleteBySource(ctx context.Context, collection string, sourceID string) error {
	if !q.Connected() {
		return errors.NewIndexError("not connected to qdrant", nil)
	}
	if sourceID == "" {
		return errors.NewMissingFieldError("sourceID")
	}

	req := &qdrant.DeletePoints{
		CollectionName: q.collection(collection),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: sourceFilter(sourceID),
			},
		},
	}
	if _, err := q.points.Delete(ctx, req); err != nil {
		return errors.NewIndexError(fmt.Sprintf("failed to delete points for source %s", sourceID), err)
	}
	return nil
}

// CountBySource returns the number of indexed points for a source. An
// empty sourceID counts the whole collection.
func (q *QdrantIndex) CountBySource(ctx context.Context, collection string, sourceID string) (int64, error) {
	if !q.Connected() {
		return 0, errors.NewIndexError("not connected to qdrant", nil)
	}

	exact := true
	req := &qdrant.CountPoints{
		CollectionName: q.collection(collection),
		Filter:         sourceFilter(sourceID),
		Exact:          &exact,
	}

	resp, err := q.points.Count(ctx, req)
	if err != nil {
		return 0, errors.NewIndexError("failed to count points", err)
	}
	return int64(resp.Result.Count), nil
}

func (q *QdrantIndex) collectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := q.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{
		CollectionName: name,
	})
	if err != nil {
		return false, errors.NewIndexError("failed to check collection existence", err)
	}
	return resp.Result.Exists, nil
}

func (q *QdrantIndex) collection(name string) string {
	if name == "" {
		return q.config.CollectionName
	}
	return name
}

// Helper conversions

func convertDistanceMetric(distance string) (qdrant.Distance, error) {
	switch distance {
	case "cosine":
		return qdrant.Distance_Cosine, nil
	case "euclidean":
		return qdrant.Distance_Euclid, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	default:
		return 0, errors.NewInvalidArgumentError(fmt.Sprintf("unsupported distance metric: %s", distance))
	}
}

// sourceFilter builds a must-match filter on source_id; empty means no filter
func sourceFilter(sourceID string) *qdrant.Filter {
	if sourceID == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: payloadSourceID,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: sourceID},
						},
					},
				},
			},
		},
	}
}

func chunkPointToStruct(point *types.ChunkPoint) *qdrant.PointStruct {
	chunk := &point.Chunk
	return &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: chunk.ID},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: point.Vector},
			},
		},
		Payload: map[string]*qdrant.Value{
			payloadSourceID:    stringValue(chunk.SourceID),
			payloadSourceType:  stringValue(chunk.SourceType),
			payloadStartToken:  intValue(chunk.StartToken),
			payloadEndToken:    intValue(chunk.EndToken),
			payloadGranularity: stringValue(string(chunk.Granularity)),
			payloadText:        stringValue(point.Text),
		},
	}
}

func scoredPointToHit(point *qdrant.ScoredPoint) types.SearchHit {
	hit := types.SearchHit{
		ChunkID: point.Id.GetUuid(),
		Score:   point.Score,
	}

	payload := point.Payload
	if payload == nil {
		return hit
	}

	hit.SourceID = payload[payloadSourceID].GetStringValue()
	hit.SourceType = payload[payloadSourceType].GetStringValue()
	hit.Granularity = types.Granularity(payload[payloadGranularity].GetStringValue())
	hit.StartToken = int(payload[payloadStartToken].GetIntegerValue())
	hit.EndToken = int(payload[payloadEndToken].GetIntegerValue())
	hit.Text = payload[payloadText].GetStringValue()
	return hit
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(i int) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(i)}}
}
