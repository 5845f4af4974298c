package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/chain"
	"github.com/pressroom/backend/internal/quota"
	"github.com/pressroom/backend/internal/retrieval"
	"github.com/pressroom/backend/internal/storage/models"
)

type fakeQuota struct {
	reserved []int
	events   []models.UsageEvent
	deny     bool
}

func (f *fakeQuota) Reserve(ctx context.Context, userID string, estimated int) (quota.Result, error) {
	f.reserved = append(f.reserved, estimated)
	if f.deny {
		return quota.Result{Used: 150000, Limit: 200000, Exceeded: true}, &apperr.QuotaExceededError{
			UserID: userID, Used: 150000, Limit: 200000, Requested: estimated,
		}
	}
	return quota.Result{Allowed: true}, nil
}

func (f *fakeQuota) RecordUsage(ctx context.Context, userID string, event models.UsageEvent) {
	f.events = append(f.events, event)
}

type fakeRetriever struct {
	frags []retrieval.Fragment
	query string
	opts  retrieval.Options
}

func (f *fakeRetriever) RetrieveContext(ctx context.Context, userID, query string, opts retrieval.Options) ([]retrieval.Fragment, error) {
	f.query = query
	f.opts = opts
	return f.frags, nil
}

func TestGenerateHeadline_RecordsUsage(t *testing.T) {
	q := &fakeQuota{}
	s := NewService(Config{
		Model: "gpt-4o-mini",
		Quota: q,
		Chains: Chains{
			Headline: chain.Func[string, chain.HeadlineResult](func(ctx context.Context, in string) (chain.HeadlineResult, error) {
				return chain.HeadlineResult{Headline: "Acme opens Springfield plant"}, nil
			}),
		},
	})

	out, err := s.GenerateHeadline(context.Background(), "u1", "Acme is opening a plant in Springfield")
	require.NoError(t, err)
	assert.Equal(t, "Acme opens Springfield plant", out.Headline)

	require.Equal(t, []int{10}, q.reserved)
	require.Len(t, q.events, 1)
	ev := q.events[0]
	assert.Equal(t, models.EventAIGenerate, ev.EventType)
	assert.Equal(t, 38, ev.PromptChars)
	assert.Equal(t, 10, ev.TokensPrompt)
	assert.Equal(t, "gpt-4o-mini", ev.Model)
	assert.Equal(t, "headline", ev.Metadata["op"])
	assert.Positive(t, ev.TokensCompletion)
}

func TestInvoke_QuotaDeniedSkipsChain(t *testing.T) {
	q := &fakeQuota{deny: true}
	called := false
	s := NewService(Config{
		Quota: q,
		Chains: Chains{
			Edit: chain.Func[chain.EditInput, string](func(ctx context.Context, in chain.EditInput) (string, error) {
				called = true
				return "edited", nil
			}),
		},
	})

	_, err := s.Edit(context.Background(), "u1", chain.EditInput{Instruction: "shorter", CurrentContent: "long text"})
	var qe *apperr.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.False(t, called)
	assert.Empty(t, q.events)
}

func TestInvoke_ChainErrorNotRecorded(t *testing.T) {
	q := &fakeQuota{}
	s := NewService(Config{
		Quota: q,
		Chains: Chains{
			Translate: chain.Func[chain.TranslationInput, string](func(ctx context.Context, in chain.TranslationInput) (string, error) {
				return "", &apperr.ProviderError{Provider: "openai", Op: "completion", StatusCode: 500}
			}),
		},
	})

	_, err := s.Translate(context.Background(), "u1", chain.TranslationInput{Text: "Hallo", TargetLanguage: "English"})
	var pe *apperr.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Empty(t, q.events)
}

func TestGenerateAd_UsesAdEvent(t *testing.T) {
	q := &fakeQuota{}
	s := NewService(Config{
		Quota: q,
		Chains: Chains{
			Ad: chain.Func[chain.AdInput, chain.AdStructured](func(ctx context.Context, in chain.AdInput) (chain.AdStructured, error) {
				return chain.AdStructured{Platform: in.Platform, Headline: "Visit Springfield"}, nil
			}),
		},
	})

	out, err := s.GenerateAd(context.Background(), "u1", chain.AdInput{Platform: chain.PlatformFacebook, PressRelease: "text"})
	require.NoError(t, err)
	assert.Equal(t, chain.PlatformFacebook, out.Platform)
	require.Len(t, q.events, 1)
	assert.Equal(t, models.EventAdGenerate, q.events[0].EventType)
}

func TestGeneratePressRelease_SplicesRetrieval(t *testing.T) {
	q := &fakeQuota{}
	r := &fakeRetriever{frags: []retrieval.Fragment{
		{Content: "Plant employs 200 people.", SourceID: "d1", Title: "Fact sheet"},
		{Content: "Opened in 1998.", SourceID: "d2"},
	}}

	var got chain.GenerationContext
	s := NewService(Config{
		Quota:     q,
		Retriever: r,
		Retrieval: retrieval.Options{Limit: 3},
		Chains: Chains{
			PressRelease: chain.Func[chain.GenerationContext, chain.StructuredPressRelease](func(ctx context.Context, in chain.GenerationContext) (chain.StructuredPressRelease, error) {
				got = in
				return chain.StructuredPressRelease{Headline: "Acme expands in Springfield"}, nil
			}),
		},
	})

	resp, err := s.GeneratePressRelease(context.Background(), "u1", PressReleaseRequest{
		GenerationContext: chain.GenerationContext{CompanyName: "Acme", MainStory: "Springfield plant expansion"},
		UseRetrieval:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Springfield plant expansion", r.query)
	assert.Equal(t, 3, r.opts.Limit)
	assert.Equal(t, chain.DefaultBrandTone, got.BrandTone)
	assert.Equal(t, "Fact sheet\nPlant employs 200 people.\n\n---\n\nOpened in 1998.", got.Background)
	assert.Len(t, resp.Fragments, 2)
	assert.Equal(t, "Acme expands in Springfield", resp.Release.Headline)

	require.Len(t, q.events, 2)
	rag := q.events[0]
	assert.Equal(t, models.EventRAGSearch, rag.EventType)
	assert.Equal(t, "press_release", rag.Metadata["op"])
	assert.Equal(t, 27, rag.PromptChars)
	assert.Equal(t, 7, rag.TokensPrompt)
	assert.Equal(t, "2", rag.Metadata["fragments"])
	assert.Equal(t, models.EventAIGenerate, q.events[1].EventType)
	assert.Equal(t, 7, q.reserved[0])
}

func TestGeneratePressRelease_RetrievalQuotaDenied(t *testing.T) {
	r := &fakeRetriever{}
	s := NewService(Config{
		Quota:     &fakeQuota{deny: true},
		Retriever: r,
		Chains: Chains{
			PressRelease: chain.Func[chain.GenerationContext, chain.StructuredPressRelease](func(ctx context.Context, in chain.GenerationContext) (chain.StructuredPressRelease, error) {
				t.Fatal("chain must not run")
				return chain.StructuredPressRelease{}, nil
			}),
		},
	})

	_, err := s.GeneratePressRelease(context.Background(), "u1", PressReleaseRequest{
		GenerationContext: chain.GenerationContext{CompanyName: "Acme", MainStory: "Springfield plant expansion"},
		UseRetrieval:      true,
	})
	var qe *apperr.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Empty(t, r.query)
}

func TestGeneratePressRelease_WithoutRetrieval(t *testing.T) {
	r := &fakeRetriever{}
	s := NewService(Config{
		Quota:     &fakeQuota{},
		Retriever: r,
		Chains: Chains{
			PressRelease: chain.Func[chain.GenerationContext, chain.StructuredPressRelease](func(ctx context.Context, in chain.GenerationContext) (chain.StructuredPressRelease, error) {
				assert.Empty(t, in.Background)
				return chain.StructuredPressRelease{}, nil
			}),
		},
	})

	resp, err := s.GeneratePressRelease(context.Background(), "u1", PressReleaseRequest{
		GenerationContext: chain.GenerationContext{CompanyName: "Acme", MainStory: "story"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Fragments)
	assert.Empty(t, r.query)
}

func TestSearch_RecordsRAGEvent(t *testing.T) {
	q := &fakeQuota{}
	r := &fakeRetriever{frags: []retrieval.Fragment{{Content: "abcd", SourceID: "d1"}}}
	s := NewService(Config{Quota: q, Retriever: r, Retrieval: retrieval.Options{Limit: 5, Strategy: retrieval.StrategyNative}})

	frags, err := s.Search(context.Background(), "u1", SearchRequest{Query: "springfield", Strategy: retrieval.StrategyJSON})
	require.NoError(t, err)
	assert.Len(t, frags, 1)
	assert.Equal(t, retrieval.StrategyJSON, r.opts.Strategy)
	assert.Equal(t, 5, r.opts.Limit)

	require.Len(t, q.events, 1)
	assert.Equal(t, models.EventRAGSearch, q.events[0].EventType)
	assert.Equal(t, 4, q.events[0].CompletionChars)
	assert.Equal(t, "1", q.events[0].Metadata["fragments"])
	assert.Equal(t, "search", q.events[0].Metadata["op"])
}

func TestSearch_RequiresQuery(t *testing.T) {
	s := NewService(Config{Quota: &fakeQuota{}, Retriever: &fakeRetriever{}})

	_, err := s.Search(context.Background(), "u1", SearchRequest{Query: "  "})
	var ve *apperr.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestInvoke_MissingChain(t *testing.T) {
	s := NewService(Config{Quota: &fakeQuota{}})
	_, err := s.GenerateSocial(context.Background(), "u1", "text")
	assert.Error(t, err)
}
