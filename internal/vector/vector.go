package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean:
		return Metric(s), nil
	case "":
		return MetricCosine, nil
	}
	return "", fmt.Errorf("unknown vector metric %q", s)
}

type Hit struct {
	DocumentID string
	Content    string
	Title      string
	Source     string
	Score      float64
}

type SemanticSearch interface {
	Name() string
	Search(ctx context.Context, userID, query string, k int, minScore float64) ([]Hit, error)
}

type Item struct {
	ID         string
	DocumentID string
	Content    string
	Title      string
	Source     string
	Vector     []float32
}

type Match struct {
	DocumentID string
	Content    string
	Title      string
	Source     string
	Distance   float64
}

type Index interface {
	Name() string
	Upsert(ctx context.Context, userID string, items []Item) error
	SimilaritySearch(ctx context.Context, userID string, vec []float32, k int, metric Metric) ([]Match, error)
}

// DistanceToScore normalises a raw distance so higher is better.
func DistanceToScore(metric Metric, distance float64) float64 {
	if metric == MetricEuclidean {
		return 1 / (1 + distance)
	}
	return 1 - distance
}

// CosineSimilarity returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func EncodeEmbedding(vec []float32) (string, error) {
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(b), nil
}

func ParseEmbedding(raw string) ([]float32, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty embedding")
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return vec, nil
}
