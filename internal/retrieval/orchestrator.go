// Package retrieval assembles reference context for generation. Stages are
// tried in order (native vector, JSON vector, keyword); each runs under its
// own timeout and circuit breaker, and a failing stage falls through to the
// next one instead of failing the request.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/keyword"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/storage/models"
	"github.com/pressroom/backend/internal/vector"
	"github.com/pressroom/backend/pkg/circuitbreaker"
)

const (
	StrategyJSON   = "json"
	StrategyNative = "native-vector"

	DefaultLimit    = 5
	DefaultMaxChars = 4000
)

type Options struct {
	Limit    int
	Strategy string
	MinScore float64
	MaxChars int
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	return o
}

type Fragment struct {
	Content  string   `json:"content"`
	SourceID string   `json:"source_id"`
	// nil for keyword matches
	Score    *float64 `json:"score"`
	Source   string   `json:"source"`
	Title    string   `json:"title,omitempty"`
}

type KeywordStore interface {
	SearchDocumentsByKeyword(ctx context.Context, userID, query string, limit int) ([]models.Document, error)
}

type Config struct {
	// Native is nil when no vector backend is configured.
	Native          vector.SemanticSearch
	JSON            vector.SemanticSearch
	Keyword         KeywordStore
	Index           *keyword.Index
	StageTimeout    time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Logger          *zap.Logger
	Now             func() time.Time
}

type stage struct {
	name    string
	run     func(ctx context.Context, userID, query string, opts Options) ([]Fragment, error)
	skip    func(opts Options) bool
	breaker *circuitbreaker.CircuitBreaker
}

type Orchestrator struct {
	stages       []stage
	stageTimeout time.Duration
	logger       *zap.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	o := &Orchestrator{stageTimeout: cfg.StageTimeout, logger: cfg.Logger}
	newBreaker := func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New("retrieval-"+name, circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerCooldown,
			Logger:           cfg.Logger,
			Now:              cfg.Now,
		})
	}

	if cfg.Native != nil {
		native := cfg.Native
		o.stages = append(o.stages, stage{
			name:    "native",
			run:     semanticStage(native),
			skip:    func(opts Options) bool { return opts.Strategy == StrategyJSON },
			breaker: newBreaker("native"),
		})
	}
	if cfg.JSON != nil {
		o.stages = append(o.stages, stage{
			name:    "json",
			run:     semanticStage(cfg.JSON),
			breaker: newBreaker("json"),
		})
	}
	if cfg.Keyword != nil || cfg.Index != nil {
		o.stages = append(o.stages, stage{
			name:    "keyword",
			run:     keywordStage(cfg.Keyword, cfg.Index),
			breaker: newBreaker("keyword"),
		})
	}

	return o
}

// RetrieveContext returns the first non-empty stage's fragments, cut to the
// character budget. Stage failures never surface; the only error returned is
// the caller's own context error.
func (o *Orchestrator) RetrieveContext(ctx context.Context, userID, query string, opts Options) ([]Fragment, error) {
	opts = opts.withDefaults()

	attempted, failed := 0, 0
	for _, st := range o.stages {
		if st.skip != nil && st.skip(opts) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempted++

		var frags []Fragment
		err := st.breaker.Execute(ctx, func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
			defer cancel()

			var err error
			frags, err = st.run(stageCtx, userID, query, opts)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			outcome := "error"
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
				outcome = "open"
			}
			metrics.RetrievalStageResults.WithLabelValues(st.name, outcome).Inc()
			o.logger.Warn("Retrieval stage failed, falling through",
				zap.String("stage", st.name),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		if len(frags) == 0 {
			metrics.RetrievalStageResults.WithLabelValues(st.name, "empty").Inc()
			continue
		}

		metrics.RetrievalStageResults.WithLabelValues(st.name, "hit").Inc()
		out := applyBudget(frags, opts.MaxChars)
		metrics.RetrievalFragments.Observe(float64(len(out)))
		o.logger.Debug("Retrieval stage served request",
			zap.String("stage", st.name),
			zap.Int("fragments", len(out)),
		)
		return out, nil
	}

	if attempted > 0 && failed == attempted {
		metrics.RetrievalAllStagesFailed.Inc()
		o.logger.Error("All retrieval stages failed",
			zap.String("user_id", userID),
			zap.Int("stages", attempted),
		)
	}

	metrics.RetrievalFragments.Observe(0)
	return nil, nil
}

// applyBudget keeps fragments in order until the next one would push the
// total past maxChars. Fragments are never cut.
func applyBudget(frags []Fragment, maxChars int) []Fragment {
	total := 0
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		n := utf8.RuneCountInString(f.Content)
		if total+n > maxChars {
			break
		}
		total += n
		out = append(out, f)
	}
	return out
}

func semanticStage(s vector.SemanticSearch) func(context.Context, string, string, Options) ([]Fragment, error) {
	return func(ctx context.Context, userID, query string, opts Options) ([]Fragment, error) {
		hits, err := s.Search(ctx, userID, query, opts.Limit, opts.MinScore)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		frags := make([]Fragment, 0, len(hits))
		for _, h := range hits {
			score := h.Score
			frags = append(frags, Fragment{
				Content:  h.Content,
				SourceID: h.DocumentID,
				Score:    &score,
				Source:   h.Source,
				Title:    h.Title,
			})
		}
		return frags, nil
	}
}

func keywordStage(store KeywordStore, idx *keyword.Index) func(context.Context, string, string, Options) ([]Fragment, error) {
	return func(ctx context.Context, userID, query string, opts Options) ([]Fragment, error) {
		var storeErr error
		if store != nil {
			docs, err := store.SearchDocumentsByKeyword(ctx, userID, query, opts.Limit)
			if err == nil && len(docs) > 0 {
				frags := make([]Fragment, 0, len(docs))
				for _, d := range docs {
					frags = append(frags, Fragment{
						Content:  d.Content,
						SourceID: d.ID,
						Source:   d.Source,
						Title:    d.Title,
					})
				}
				return frags, nil
			}
			storeErr = err
		}

		if idx != nil {
			results := idx.SearchOwned(userID, query, opts.Limit)
			if len(results) > 0 {
				frags := make([]Fragment, 0, len(results))
				for _, r := range results {
					frags = append(frags, Fragment{
						Content:  r.Chunk.Content,
						SourceID: r.Chunk.ID,
						Source:   "memory",
					})
				}
				return frags, nil
			}
		}

		return nil, storeErr
	}
}
