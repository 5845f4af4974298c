package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

type HealthCheck func(ctx context.Context) error

type Routes struct {
	Generate  *GenerateHandler
	Documents *DocumentHandler
	Search    *SearchHandler
	Health    map[string]HealthCheck
	// Guards run before every user-scoped route, in order.
	Guards []fiber.Handler
}

func Register(router fiber.Router, r Routes) {
	api := router.Group("/api/v1")

	api.Get("/health", healthHandler(r.Health))

	route := func(method, path string, h fiber.Handler) {
		handlers := make([]fiber.Handler, 0, len(r.Guards)+1)
		handlers = append(handlers, r.Guards...)
		api.Add(method, path, append(handlers, h)...)
	}

	if r.Generate != nil {
		route(fiber.MethodPost, "/generate/headline", r.Generate.Headline)
		route(fiber.MethodPost, "/generate/press-release", r.Generate.PressRelease)
		route(fiber.MethodPost, "/generate/edit", r.Generate.Edit)
		route(fiber.MethodPost, "/generate/translate", r.Generate.Translate)
		route(fiber.MethodPost, "/generate/social", r.Generate.Social)
		route(fiber.MethodPost, "/generate/ad", r.Generate.Ad)
	}
	if r.Search != nil {
		route(fiber.MethodPost, "/rag/search", r.Search.Search)
		route(fiber.MethodGet, "/usage", r.Search.Usage)
	}
	if r.Documents != nil {
		route(fiber.MethodPost, "/documents", r.Documents.UploadDocument)
	}
}

func healthHandler(checks map[string]HealthCheck) fiber.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := "healthy"
		components := make(fiber.Map, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				components[name] = err.Error()
				status = "degraded"
				continue
			}
			components[name] = "ok"
		}

		code := fiber.StatusOK
		if status != "healthy" {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":     status,
			"components": components,
			"time":       time.Now().Unix(),
		})
	}
}
