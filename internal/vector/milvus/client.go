package milvus

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/vector"
	"github.com/pressroom/backend/pkg/logger"
)

var outputFields = []string{"document_id", "content", "title", "source"}

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
	metric         vector.Metric
}

var _ vector.Index = (*Client)(nil)

// NewClient connects to endpoint. The collection index is built for metric,
// so searches must use the same metric.
func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int, metric vector.Metric) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.String("metric", string(metric)),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		metric:         metric,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) Name() string { return "milvus" }

func (m *Client) Ping(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("collection %s not found", m.collectionName)
	}
	return nil
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Press room document chunk embeddings",
		Fields: []*entity.Field{
			varchar("chunk_id", 256).WithIsPrimaryKey(true),
			varchar("user_id", 128),
			varchar("document_id", 128),
			varchar("title", 1024),
			varchar("source", 128),
			varchar("content", 16384),
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(m.vectorDim),
				},
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	metricType, err := metricType(m.metric)
	if err != nil {
		return err
	}

	idx, err := entity.NewIndexIvfFlat(metricType, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func varchar(name string, maxLen int) *entity.Field {
	return entity.NewField().
		WithName(name).
		WithDataType(entity.FieldTypeVarChar).
		WithMaxLength(int64(maxLen))
}

func (m *Client) Upsert(ctx context.Context, userID string, items []vector.Item) error {
	if len(items) == 0 {
		return nil
	}

	n := len(items)
	chunkIDs := make([]string, n)
	userIDs := make([]string, n)
	docIDs := make([]string, n)
	titles := make([]string, n)
	sources := make([]string, n)
	contents := make([]string, n)
	embeddings := make([][]float32, n)
	timestamps := make([]int64, n)

	now := time.Now().Unix()
	for i, item := range items {
		if len(item.Vector) != m.vectorDim {
			return fmt.Errorf("chunk %s has dimension %d, collection expects %d", item.ID, len(item.Vector), m.vectorDim)
		}
		chunkIDs[i] = item.ID
		userIDs[i] = userID
		docIDs[i] = item.DocumentID
		titles[i] = item.Title
		sources[i] = item.Source
		contents[i] = item.Content
		embeddings[i] = item.Vector
		timestamps[i] = now
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("user_id", userIDs),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnInt64("created_at", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Chunks inserted into milvus", zap.String("user_id", userID), zap.Int("count", n))

	return nil
}

func (m *Client) SimilaritySearch(ctx context.Context, userID string, vec []float32, k int, metric vector.Metric) ([]vector.Match, error) {
	if metric != m.metric {
		return nil, fmt.Errorf("collection indexed for %s, cannot search with %s", m.metric, metric)
	}
	mt, err := metricType(metric)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		userFilter(userID),
		outputFields,
		[]entity.Vector{entity.FloatVector(vec)},
		"embedding",
		mt,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]vector.Match, 0, k)
	for _, sr := range results {
		for i := 0; i < sr.ResultCount; i++ {
			matches = append(matches, vector.Match{
				DocumentID: columnString(sr.Fields.GetColumn("document_id"), i),
				Content:    columnString(sr.Fields.GetColumn("content"), i),
				Title:      columnString(sr.Fields.GetColumn("title"), i),
				Source:     columnString(sr.Fields.GetColumn("source"), i),
				Distance:   toDistance(metric, sr.Scores[i]),
			})
		}
	}

	logger.Debug("Milvus search completed",
		zap.Int("topK", k),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

func metricType(metric vector.Metric) (entity.MetricType, error) {
	switch metric {
	case vector.MetricCosine:
		return entity.COSINE, nil
	case vector.MetricEuclidean:
		return entity.L2, nil
	}
	return "", fmt.Errorf("unsupported metric %q", metric)
}

// toDistance maps Milvus scores onto distances: COSINE reports a
// similarity, L2 reports the squared euclidean distance.
func toDistance(metric vector.Metric, score float32) float64 {
	if metric == vector.MetricCosine {
		return 1 - float64(score)
	}
	return math.Sqrt(math.Max(float64(score), 0))
}

func userFilter(userID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(userID)
	return fmt.Sprintf(`user_id == "%s"`, escaped)
}

func columnString(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
