package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/pkg/logger"
	"github.com/pressroom/backend/pkg/utils"
)

type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from a cache and embeds only the
// misses, in a single upstream call. Cache failures degrade to a miss.
type CachedEmbedder struct {
	next  Embedder
	cache EmbeddingCache
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, cache EmbeddingCache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		hashes[i] = utils.HashString(text)
		vec, ok, err := c.cache.GetEmbedding(ctx, hashes[i])
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			out[i] = vec
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, &apperr.ProviderError{
			Provider: "embedding",
			Op:       "embedding",
			Detail:   fmt.Sprintf("embedding count mismatch: got %d, expected %d", len(fresh), len(missTexts)),
		}
	}

	for j, i := range missIdx {
		out[i] = fresh[j]
		if err := c.cache.SetEmbedding(ctx, hashes[i], fresh[j], c.ttl); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return out, nil
}
