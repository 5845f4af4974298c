package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/chain"
	"github.com/pressroom/backend/internal/quota"
	"github.com/pressroom/backend/internal/retrieval"
	"github.com/pressroom/backend/internal/storage/models"
)

const fragmentSeparator = "\n\n---\n\n"

type Chains struct {
	Headline     chain.Chain[string, chain.HeadlineResult]
	PressRelease chain.Chain[chain.GenerationContext, chain.StructuredPressRelease]
	Edit         chain.Chain[chain.EditInput, string]
	Translate    chain.Chain[chain.TranslationInput, string]
	Ad           chain.Chain[chain.AdInput, chain.AdStructured]
	Social       chain.Chain[string, chain.SocialPosts]
}

type Retriever interface {
	RetrieveContext(ctx context.Context, userID, query string, opts retrieval.Options) ([]retrieval.Fragment, error)
}

type Accountant interface {
	Reserve(ctx context.Context, userID string, estimated int) (quota.Result, error)
	RecordUsage(ctx context.Context, userID string, event models.UsageEvent)
}

type Config struct {
	Chains    Chains
	Retriever Retriever
	Quota     Accountant
	// Model is recorded on usage events.
	Model     string
	Retrieval retrieval.Options
	Logger    *zap.Logger
	Now       func() time.Time
}

type Service struct {
	chains    Chains
	retriever Retriever
	quota     Accountant
	model     string
	retrieval retrieval.Options
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		chains:    cfg.Chains,
		retriever: cfg.Retriever,
		quota:     cfg.Quota,
		model:     cfg.Model,
		retrieval: cfg.Retrieval,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

type PressReleaseRequest struct {
	chain.GenerationContext
	// UseRetrieval splices the user's documents into Background.
	UseRetrieval   bool   `json:"use_retrieval"`
	RetrievalQuery string `json:"retrieval_query"`
}

type PressReleaseResponse struct {
	Release   chain.StructuredPressRelease `json:"release"`
	Fragments []retrieval.Fragment         `json:"fragments,omitempty"`
}

func (s *Service) GenerateHeadline(ctx context.Context, userID, text string) (chain.HeadlineResult, error) {
	return invoke(ctx, s, userID, models.EventAIGenerate, "headline", s.chains.Headline, text, chars(text))
}

func (s *Service) GeneratePressRelease(ctx context.Context, userID string, req PressReleaseRequest) (PressReleaseResponse, error) {
	in := req.GenerationContext
	if strings.TrimSpace(in.BrandTone) == "" {
		in.BrandTone = chain.DefaultBrandTone
	}

	var resp PressReleaseResponse
	if req.UseRetrieval {
		query := req.RetrievalQuery
		if strings.TrimSpace(query) == "" {
			query = in.MainStory
		}
		frags, err := s.retrieve(ctx, userID, "press_release", query, s.retrieval)
		if err != nil {
			return PressReleaseResponse{}, err
		}
		resp.Fragments = frags
		in.Background = joinFragments(in.Background, frags)
	}

	inputChars := chars(in.BrandTone) + chars(in.CompanyName) + chars(in.CompanyBoilerplate) +
		chars(in.MainStory) + chars(in.Quote) + chars(in.Background)

	release, err := invoke(ctx, s, userID, models.EventAIGenerate, "press_release", s.chains.PressRelease, in, inputChars)
	if err != nil {
		return PressReleaseResponse{}, err
	}
	resp.Release = release
	return resp, nil
}

func (s *Service) Edit(ctx context.Context, userID string, in chain.EditInput) (string, error) {
	return invoke(ctx, s, userID, models.EventAIGenerate, "edit", s.chains.Edit, in,
		chars(in.Instruction)+chars(in.CurrentContent))
}

func (s *Service) Translate(ctx context.Context, userID string, in chain.TranslationInput) (string, error) {
	return invoke(ctx, s, userID, models.EventAIGenerate, "translation", s.chains.Translate, in,
		chars(in.Text)+chars(in.TargetLanguage))
}

func (s *Service) GenerateAd(ctx context.Context, userID string, in chain.AdInput) (chain.AdStructured, error) {
	return invoke(ctx, s, userID, models.EventAdGenerate, "ad", s.chains.Ad, in,
		chars(in.Platform)+chars(in.PressRelease))
}

func (s *Service) GenerateSocial(ctx context.Context, userID, pressRelease string) (chain.SocialPosts, error) {
	return invoke(ctx, s, userID, models.EventAIGenerate, "social_posts", s.chains.Social, pressRelease, chars(pressRelease))
}

type SearchRequest struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit"`
	Strategy string  `json:"strategy"`
	MinScore float64 `json:"min_score"`
	MaxChars int     `json:"max_chars"`
}

func (s *Service) Search(ctx context.Context, userID string, req SearchRequest) ([]retrieval.Fragment, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperr.NewValidationError("search", apperr.Violation{Field: "query", Reason: "query is required"})
	}

	opts := s.retrieval
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Strategy != "" {
		opts.Strategy = req.Strategy
	}
	if req.MinScore > 0 {
		opts.MinScore = req.MinScore
	}
	if req.MaxChars > 0 {
		opts.MaxChars = req.MaxChars
	}

	return s.retrieve(ctx, userID, "search", req.Query, opts)
}

// retrieve charges the query embedding as a rag_search event.
func (s *Service) retrieve(ctx context.Context, userID, op, query string, opts retrieval.Options) ([]retrieval.Fragment, error) {
	queryChars := chars(query)
	est := quota.EstimateTokens(queryChars)
	if _, err := s.quota.Reserve(ctx, userID, est); err != nil {
		return nil, err
	}

	start := s.now()
	frags, err := s.retriever.RetrieveContext(ctx, userID, query, opts)
	if err != nil {
		return nil, err
	}

	returned := 0
	for _, f := range frags {
		returned += chars(f.Content)
	}
	s.quota.RecordUsage(ctx, userID, models.UsageEvent{
		EventType:       models.EventRAGSearch,
		PromptChars:     queryChars,
		CompletionChars: returned,
		TokensPrompt:    est,
		LatencyMs:       s.now().Sub(start).Milliseconds(),
		Metadata:        map[string]string{"op": op, "fragments": strconv.Itoa(len(frags))},
	})

	return frags, nil
}

// invoke reserves quota for the input, runs c once and records the usage.
// Failed invocations are not recorded.
func invoke[In, Out any](ctx context.Context, s *Service, userID, eventType, op string, c chain.Chain[In, Out], in In, inputChars int) (Out, error) {
	var zero Out
	if c == nil {
		return zero, fmt.Errorf("%s chain is not configured", op)
	}

	est := quota.EstimateTokens(inputChars)
	if _, err := s.quota.Reserve(ctx, userID, est); err != nil {
		return zero, err
	}

	start := s.now()
	out, err := c.Invoke(ctx, in)
	if err != nil {
		s.logger.Warn("Generation failed",
			zap.String("op", op),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return zero, err
	}
	latency := s.now().Sub(start)

	outputChars := outputChars(out)
	s.quota.RecordUsage(ctx, userID, models.UsageEvent{
		EventType:        eventType,
		PromptChars:      inputChars,
		CompletionChars:  outputChars,
		TokensPrompt:     est,
		TokensCompletion: quota.EstimateTokens(outputChars),
		Model:            s.model,
		LatencyMs:        latency.Milliseconds(),
		Metadata:         map[string]string{"op": op},
	})

	s.logger.Info("Generation completed",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Duration("latency", latency),
	)

	return out, nil
}

func chars(s string) int {
	return utf8.RuneCountInString(s)
}

func outputChars(v any) int {
	if s, ok := v.(string); ok {
		return chars(s)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return chars(string(encoded))
}

func joinFragments(existing string, frags []retrieval.Fragment) string {
	parts := make([]string, 0, len(frags)+1)
	if strings.TrimSpace(existing) != "" {
		parts = append(parts, existing)
	}
	for _, f := range frags {
		if f.Title != "" {
			parts = append(parts, f.Title+"\n"+f.Content)
		} else {
			parts = append(parts, f.Content)
		}
	}
	return strings.Join(parts, fragmentSeparator)
}
