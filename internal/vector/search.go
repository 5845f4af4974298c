package vector

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/llm"
	"github.com/pressroom/backend/internal/storage/models"
)

type DocumentLister interface {
	ListDocuments(ctx context.Context, userID string, limit int) ([]models.Document, error)
}

// JSONSearch embeds the query once and ranks a bounded slice of the user's
// documents by cosine similarity against their stored JSON embeddings.
type JSONSearch struct {
	docs      DocumentLister
	embedder  llm.Embedder
	scanLimit int
	logger    *zap.Logger
}

func NewJSONSearch(docs DocumentLister, embedder llm.Embedder, scanLimit int, logger *zap.Logger) *JSONSearch {
	if scanLimit <= 0 {
		scanLimit = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONSearch{docs: docs, embedder: embedder, scanLimit: scanLimit, logger: logger}
}

func (s *JSONSearch) Name() string { return "json" }

func (s *JSONSearch) Search(ctx context.Context, userID, query string, k int, minScore float64) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	docs, err := s.docs.ListDocuments(ctx, userID, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	qvec, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	skipped := 0
	hits := make([]Hit, 0, len(docs))
	for _, doc := range docs {
		vec, err := ParseEmbedding(doc.Embedding)
		if err != nil || len(vec) != len(qvec) {
			skipped++
			continue
		}
		score := CosineSimilarity(qvec, vec)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{
			DocumentID: doc.ID,
			Content:    doc.Content,
			Title:      doc.Title,
			Source:     doc.Source,
			Score:      score,
		})
	}

	if skipped > 0 {
		s.logger.Debug("Documents without usable embeddings skipped",
			zap.String("user_id", userID),
			zap.Int("skipped", skipped),
		)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

type NativeSearch struct {
	index    Index
	embedder llm.Embedder
	metric   Metric
}

func NewNativeSearch(index Index, embedder llm.Embedder, metric Metric) *NativeSearch {
	if metric == "" {
		metric = MetricCosine
	}
	return &NativeSearch{index: index, embedder: embedder, metric: metric}
}

func (s *NativeSearch) Name() string { return "native:" + s.index.Name() }

func (s *NativeSearch) Search(ctx context.Context, userID, query string, k int, minScore float64) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	qvec, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.SimilaritySearch(ctx, userID, qvec, k, s.metric)
	if err != nil {
		return nil, fmt.Errorf("%s similarity query: %w", s.index.Name(), err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		score := DistanceToScore(s.metric, m.Distance)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{
			DocumentID: m.DocumentID,
			Content:    m.Content,
			Title:      m.Title,
			Source:     m.Source,
			Score:      score,
		})
	}
	return hits, nil
}

func embedOne(ctx context.Context, embedder llm.Embedder, text string) ([]float32, error) {
	vecs, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}
