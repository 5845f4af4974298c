package llm

import "context"

// Completer turns a filled prompt into model text. An empty model selects
// the provider default.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Provider interface {
	Completer
	Embedder
	DefaultModel() string
}

type CompleterFunc func(ctx context.Context, prompt, model string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt, model string) (string, error) {
	return f(ctx, prompt, model)
}

type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
