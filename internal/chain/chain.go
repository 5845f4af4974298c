package chain

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/llm"
	"github.com/pressroom/backend/internal/prompt"
	"github.com/pressroom/backend/pkg/logger"
)

type Chain[In, Out any] interface {
	Invoke(ctx context.Context, in In) (Out, error)
}

type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

func (f Func[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// PromptChain renders a template, calls the completer once and parses the
// reply. It never retries.
type PromptChain[In, Out any] struct {
	name      string
	template  *prompt.Template
	vars      func(In) map[string]string
	completer llm.Completer
	model     string
	parse     func(In, string) (Out, error)
}

func NewPromptChain[In, Out any](
	name string,
	tmpl *prompt.Template,
	vars func(In) map[string]string,
	completer llm.Completer,
	model string,
	parse func(In, string) (Out, error),
) *PromptChain[In, Out] {
	return &PromptChain[In, Out]{
		name:      name,
		template:  tmpl,
		vars:      vars,
		completer: completer,
		model:     model,
		parse:     parse,
	}
}

func (c *PromptChain[In, Out]) Name() string { return c.name }

func (c *PromptChain[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	var zero Out

	text, err := c.template.Render(c.vars(in))
	if err != nil {
		return zero, err
	}

	raw, err := c.completer.Complete(ctx, text, c.model)
	if err != nil {
		return zero, fmt.Errorf("%s chain: %w", c.name, err)
	}

	out, err := c.parse(in, raw)
	if err != nil {
		logger.Debug("Chain output rejected",
			zap.String("chain", c.name),
			zap.Int("raw_chars", len(raw)),
			zap.Error(err),
		)
		return zero, err
	}

	return out, nil
}
