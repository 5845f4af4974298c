package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressroom/backend/internal/keyword"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/storage/models"
	"github.com/pressroom/backend/internal/textsplit"
	"github.com/pressroom/backend/internal/vector"
)

type fakeSearch struct {
	name  string
	hits  []vector.Hit
	err   error
	calls int
	block bool
}

func (f *fakeSearch) Name() string { return f.name }

func (f *fakeSearch) Search(ctx context.Context, userID, query string, k int, minScore float64) ([]vector.Hit, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(f.hits) > k {
		return f.hits[:k], f.err
	}
	return f.hits, f.err
}

type keywordFunc func(ctx context.Context, userID, query string, limit int) ([]models.Document, error)

func (f keywordFunc) SearchDocumentsByKeyword(ctx context.Context, userID, query string, limit int) ([]models.Document, error) {
	return f(ctx, userID, query, limit)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func hits(contents ...string) []vector.Hit {
	out := make([]vector.Hit, len(contents))
	for i, c := range contents {
		out[i] = vector.Hit{DocumentID: c, Content: c, Score: 1 - float64(i)/10}
	}
	return out
}

func TestRetrieveContext_NativeFirst(t *testing.T) {
	native := &fakeSearch{name: "native", hits: hits("n1", "n2")}
	js := &fakeSearch{name: "json", hits: hits("j1")}

	o := NewOrchestrator(Config{Native: native, JSON: js})
	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Strategy: StrategyNative})
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "n1", frags[0].SourceID)
	require.NotNil(t, frags[0].Score)
	assert.InDelta(t, 1.0, *frags[0].Score, 1e-9)
	assert.Equal(t, 0, js.calls)
}

func TestRetrieveContext_NativeErrorFallsThroughToJSON(t *testing.T) {
	native := &fakeSearch{name: "native", err: errors.New("extension \"vector\" is not available")}
	js := &fakeSearch{name: "json", hits: hits("j1")}

	o := NewOrchestrator(Config{Native: native, JSON: js})
	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Strategy: StrategyNative})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "j1", frags[0].SourceID)
}

func TestRetrieveContext_JSONStrategySkipsNative(t *testing.T) {
	native := &fakeSearch{name: "native", hits: hits("n1")}
	js := &fakeSearch{name: "json", hits: hits("j1")}

	o := NewOrchestrator(Config{Native: native, JSON: js})
	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Strategy: StrategyJSON})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "j1", frags[0].SourceID)
	assert.Equal(t, 0, native.calls)
}

func TestRetrieveContext_KeywordFallback(t *testing.T) {
	js := &fakeSearch{name: "json"}
	store := keywordFunc(func(ctx context.Context, userID, query string, limit int) ([]models.Document, error) {
		return []models.Document{{ID: "d1", Content: "keyword hit", Source: "upload", Title: "T"}}, nil
	})

	o := NewOrchestrator(Config{JSON: js, Keyword: store})
	frags, err := o.RetrieveContext(context.Background(), "u1", "keyword", Options{})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "d1", frags[0].SourceID)
	assert.Nil(t, frags[0].Score)
	assert.Equal(t, "T", frags[0].Title)
}

func TestRetrieveContext_NaiveIndexAfterStoreFailure(t *testing.T) {
	store := keywordFunc(func(ctx context.Context, userID, query string, limit int) ([]models.Document, error) {
		return nil, errors.New("database is locked")
	})
	idx := keyword.NewIndex()
	idx.AddChunks([]textsplit.Chunk{
		{ID: "c1", OwnerID: "u1", Content: "springfield plant opening"},
		{ID: "c2", OwnerID: "u2", Content: "springfield plant opening"},
	})

	o := NewOrchestrator(Config{JSON: &fakeSearch{name: "json", err: errors.New("embed failed")}, Keyword: store, Index: idx})
	frags, err := o.RetrieveContext(context.Background(), "u1", "springfield", Options{})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "c1", frags[0].SourceID)
	assert.Equal(t, "memory", frags[0].Source)
}

func TestRetrieveContext_BudgetNeverExceeded(t *testing.T) {
	contents := []string{
		strings.Repeat("a", 1500),
		strings.Repeat("b", 1500),
		strings.Repeat("c", 1500),
		strings.Repeat("d", 10),
	}
	js := &fakeSearch{name: "json", hits: hits(contents...)}
	o := NewOrchestrator(Config{JSON: js})

	for _, maxChars := range []int{1, 1499, 1500, 3000, 3001, 4000, 10000} {
		frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Limit: 10, MaxChars: maxChars})
		require.NoError(t, err)
		total := 0
		for _, f := range frags {
			total += utf8.RuneCountInString(f.Content)
		}
		assert.LessOrEqual(t, total, maxChars)
	}

	// Stops at the first fragment that does not fit rather than skipping ahead.
	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Limit: 10, MaxChars: 4000})
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, 1500, len(frags[1].Content))
}

func TestRetrieveContext_StageTimeoutFallsThrough(t *testing.T) {
	native := &fakeSearch{name: "native", block: true}
	js := &fakeSearch{name: "json", hits: hits("j1")}

	o := NewOrchestrator(Config{Native: native, JSON: js, StageTimeout: 20 * time.Millisecond})
	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Strategy: StrategyNative})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "j1", frags[0].SourceID)
}

func TestRetrieveContext_AllStagesFailed(t *testing.T) {
	before := counterValue(t, metrics.RetrievalAllStagesFailed)

	o := NewOrchestrator(Config{
		Native: &fakeSearch{name: "native", err: errors.New("down")},
		JSON:   &fakeSearch{name: "json", err: errors.New("down")},
		Keyword: keywordFunc(func(ctx context.Context, userID, query string, limit int) ([]models.Document, error) {
			return nil, errors.New("down")
		}),
	})

	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Strategy: StrategyNative})
	require.NoError(t, err)
	assert.Empty(t, frags)
	assert.Equal(t, before+1, counterValue(t, metrics.RetrievalAllStagesFailed))
}

func TestRetrieveContext_EmptyStagesAreNotFailures(t *testing.T) {
	before := counterValue(t, metrics.RetrievalAllStagesFailed)

	o := NewOrchestrator(Config{JSON: &fakeSearch{name: "json"}})
	frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{})
	require.NoError(t, err)
	assert.Empty(t, frags)
	assert.Equal(t, before, counterValue(t, metrics.RetrievalAllStagesFailed))
}

func TestRetrieveContext_BreakerSkipsFailingStage(t *testing.T) {
	native := &fakeSearch{name: "native", err: errors.New("down")}
	js := &fakeSearch{name: "json", hits: hits("j1")}

	o := NewOrchestrator(Config{Native: native, JSON: js, BreakerFailures: 2, BreakerCooldown: time.Hour})
	for i := 0; i < 5; i++ {
		frags, err := o.RetrieveContext(context.Background(), "u1", "q", Options{Strategy: StrategyNative})
		require.NoError(t, err)
		require.Len(t, frags, 1)
	}
	assert.Equal(t, 2, native.calls)
	assert.Equal(t, 5, js.calls)
}

func TestRetrieveContext_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(Config{JSON: &fakeSearch{name: "json", hits: hits("j1")}})
	_, err := o.RetrieveContext(ctx, "u1", "q", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
