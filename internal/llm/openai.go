package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/pkg/logger"
)

const providerName = "openai"

const embeddingBatchSize = 100

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

// OpenAIClient calls an OpenAI-compatible API. Each call is issued exactly
// once; retry policy belongs to callers.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
}

var _ Provider = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
	}
}

func (c *OpenAIClient) DefaultModel() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, prompt, model string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if model == "" {
		model = c.model
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", toProviderError("completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", &apperr.ProviderError{Provider: providerName, Op: "completion", Detail: "no choices returned"}
	}

	logger.Debug("LLM completion generated",
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return nil, toProviderError("embedding", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, &apperr.ProviderError{
				Provider: providerName,
				Op:       "embedding",
				Detail:   fmt.Sprintf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch)),
			}
		}

		sort.Slice(resp.Data, func(a, b int) bool { return resp.Data[a].Index < resp.Data[b].Index })
		for _, data := range resp.Data {
			embeddings = append(embeddings, data.Embedding)
		}
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

func toProviderError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.ProviderError{
			Provider:   providerName,
			Op:         op,
			StatusCode: apiErr.HTTPStatusCode,
			Detail:     apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.ProviderError{
			Provider:   providerName,
			Op:         op,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &apperr.ProviderError{Provider: providerName, Op: op, Detail: "upstream failure", Err: err}
}
