package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/pressroom/backend/internal/content"
	"github.com/pressroom/backend/internal/middleware/validation"
	"github.com/pressroom/backend/internal/quota"
	"github.com/pressroom/backend/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, userID string, req content.SearchRequest) ([]retrieval.Fragment, error)
}

type UsageReporter interface {
	Summary(ctx context.Context, userID string) (quota.Summary, error)
}

type SearchHandler struct {
	searcher Searcher
	usage    UsageReporter
}

func NewSearchHandler(searcher Searcher, usage UsageReporter) *SearchHandler {
	return &SearchHandler{searcher: searcher, usage: usage}
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var req content.SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	switch req.Strategy {
	case "", retrieval.StrategyJSON, retrieval.StrategyNative:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "strategy must be json or native-vector",
		})
	}

	frags, err := h.searcher.Search(c.UserContext(), validation.UserID(c), req)
	if err != nil {
		return writeError(c, "search documents", err)
	}
	if frags == nil {
		frags = []retrieval.Fragment{}
	}

	return c.JSON(fiber.Map{
		"query":     req.Query,
		"fragments": frags,
	})
}

func (h *SearchHandler) Usage(c *fiber.Ctx) error {
	summary, err := h.usage.Summary(c.UserContext(), validation.UserID(c))
	if err != nil {
		return writeError(c, "load usage", err)
	}
	return c.JSON(summary)
}
