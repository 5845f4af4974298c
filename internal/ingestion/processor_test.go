package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/keyword"
	"github.com/pressroom/backend/internal/llm"
	"github.com/pressroom/backend/internal/quota"
	"github.com/pressroom/backend/internal/storage/models"
	"github.com/pressroom/backend/internal/vector"
)

type memStore struct {
	docs []models.Document
}

func (m *memStore) CreateDocuments(ctx context.Context, userID string, docs []models.Document) ([]models.Document, error) {
	for i := range docs {
		docs[i].UserID = userID
	}
	m.docs = append(m.docs, docs...)
	return docs, nil
}

type recorder struct {
	events   []models.UsageEvent
	reserved []int
}

func (r *recorder) Reserve(ctx context.Context, userID string, estimated int) (quota.Result, error) {
	r.reserved = append(r.reserved, estimated)
	return quota.Result{Allowed: true}, nil
}

func (r *recorder) RecordUsage(ctx context.Context, userID string, event models.UsageEvent) {
	r.events = append(r.events, event)
}

type fakeIndex struct {
	items []vector.Item
	err   error
}

func (f *fakeIndex) Name() string { return "fake" }

func (f *fakeIndex) Upsert(ctx context.Context, userID string, items []vector.Item) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeIndex) SimilaritySearch(ctx context.Context, userID string, vec []float32, k int, metric vector.Metric) ([]vector.Match, error) {
	return nil, nil
}

func constEmbedder() llm.EmbedderFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0, float32(i)}
		}
		return out, nil
	}
}

func TestIngest_SplitsPlainText(t *testing.T) {
	store := &memStore{}
	native := &fakeIndex{}
	idx := keyword.NewIndex()
	usage := &recorder{}

	p := NewProcessor(Config{
		Store:     store,
		Embedder:  constEmbedder(),
		Native:    native,
		Index:     idx,
		Usage:     usage,
		ChunkSize: 2000,
	})

	res, err := p.Ingest(context.Background(), "u1", Request{
		Title:   "Launch notes",
		Source:  "upload",
		Content: strings.Repeat("x", 5000),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Chunks)
	assert.True(t, res.Embedded)
	assert.True(t, res.Indexed)
	require.Len(t, store.docs, 3)
	assert.Len(t, store.docs[0].Content, 2000)
	assert.Len(t, store.docs[1].Content, 2000)
	assert.Len(t, store.docs[2].Content, 1000)
	assert.Equal(t, "u1", store.docs[0].UserID)
	assert.Equal(t, res.ParentID, store.docs[2].Metadata["parent_id"])
	assert.Equal(t, "2", store.docs[2].Metadata["chunk_index"])

	vec, err := vector.ParseEmbedding(store.docs[1].Embedding)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 1}, vec)

	assert.Len(t, native.items, 3)
	assert.Equal(t, 3, idx.Len())
	assert.Len(t, idx.SearchOwned("u1", "xxxx", 5), 3)
	assert.Empty(t, idx.SearchOwned("u2", "xxxx", 5))

	require.Len(t, usage.events, 1)
	assert.Equal(t, models.EventDocIngest, usage.events[0].EventType)
	assert.Equal(t, 5000, usage.events[0].PromptChars)
	assert.Equal(t, 1250, usage.events[0].TokensPrompt)
	assert.Equal(t, []int{1250}, usage.reserved)
}

type ledger struct {
	used   int
	events int
}

func (l *ledger) RecordUsageEvent(ctx context.Context, userID string, event models.UsageEvent) error {
	l.events++
	return nil
}

func (l *ledger) GetUserProfile(ctx context.Context, userID, period string) (models.UserProfile, error) {
	return models.UserProfile{UserID: userID, Period: period, MonthlyTokensUsed: l.used}, nil
}

func (l *ledger) IncrementUserTokens(ctx context.Context, userID, period string, delta int) error {
	l.used += delta
	return nil
}

func TestIngest_QuotaExhaustedSkipsEmbedding(t *testing.T) {
	store := &memStore{}
	book := &ledger{used: 200000}
	embedCalls := 0
	p := NewProcessor(Config{
		Store: store,
		Embedder: llm.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			embedCalls++
			return constEmbedder()(ctx, texts)
		}),
		Usage: quota.NewAccountant(quota.Config{
			Store:             book,
			MonthlyTokenLimit: 200000,
			Mode:              quota.ModeEnforced,
		}),
	})

	_, err := p.Ingest(context.Background(), "u1", Request{Content: strings.Repeat("x", 40000)})

	var qe *apperr.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 10000, qe.Requested)
	assert.Zero(t, embedCalls)
	assert.Empty(t, store.docs)
	assert.Equal(t, 200000, book.used)
	assert.Zero(t, book.events)
}

func TestIngest_QuotaSoftModeStillIngests(t *testing.T) {
	book := &ledger{used: 200000}
	p := NewProcessor(Config{
		Store:    &memStore{},
		Embedder: constEmbedder(),
		Usage: quota.NewAccountant(quota.Config{
			Store:             book,
			MonthlyTokenLimit: 200000,
			Mode:              quota.ModeSoft,
		}),
	})

	res, err := p.Ingest(context.Background(), "u1", Request{Content: strings.Repeat("x", 400)})
	require.NoError(t, err)
	assert.True(t, res.Embedded)
	assert.Equal(t, 200100, book.used)
}

func TestIngest_EmbeddingFailureDegrades(t *testing.T) {
	store := &memStore{}
	native := &fakeIndex{}
	p := NewProcessor(Config{
		Store: store,
		Embedder: llm.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, &apperr.ProviderError{Provider: "openai", Op: "embedding", StatusCode: 503}
		}),
		Native: native,
	})

	res, err := p.Ingest(context.Background(), "u1", Request{Content: "plain text document"})
	require.NoError(t, err)
	assert.False(t, res.Embedded)
	assert.False(t, res.Indexed)
	require.Len(t, store.docs, 1)
	assert.Empty(t, store.docs[0].Embedding)
	assert.Equal(t, "Untitled", store.docs[0].Title)
	assert.Empty(t, native.items)
}

func TestIngest_NativeFailureStillStores(t *testing.T) {
	store := &memStore{}
	p := NewProcessor(Config{
		Store:    store,
		Embedder: constEmbedder(),
		Native:   &fakeIndex{err: errors.New("extension \"vector\" is not available")},
	})

	res, err := p.Ingest(context.Background(), "u1", Request{Content: "hello"})
	require.NoError(t, err)
	assert.True(t, res.Embedded)
	assert.False(t, res.Indexed)
	assert.Len(t, store.docs, 1)
}

func TestIngest_CleansHTML(t *testing.T) {
	store := &memStore{}
	p := NewProcessor(Config{Store: store})

	html := `<!DOCTYPE html><html><head><title>Plant Opening</title><style>p{}</style></head>
<body><nav>Home | About</nav>
<h1>Springfield plant opens</h1>
<p>Acme   opened a new plant.</p>
<p>Contact press@acme.com</p>
<script>track()</script>
<footer>Copyright</footer></body></html>`

	_, err := p.Ingest(context.Background(), "u1", Request{Content: html})
	require.NoError(t, err)
	require.Len(t, store.docs, 1)

	doc := store.docs[0]
	assert.Equal(t, "Plant Opening", doc.Title)
	assert.Equal(t, "Springfield plant opens\n\nAcme opened a new plant.\n\nContact press@acme.com", doc.Content)
}

func TestIngest_RejectsEmptyContent(t *testing.T) {
	p := NewProcessor(Config{Store: &memStore{}})

	_, err := p.Ingest(context.Background(), "u1", Request{Content: "   "})
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "content", ve.Violations[0].Field)

	_, err = p.Ingest(context.Background(), "u1", Request{Format: "html", Content: "<html><body><script>x()</script></body></html>"})
	assert.True(t, errors.As(err, &ve))
}
