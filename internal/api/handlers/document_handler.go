package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/ingestion"
	"github.com/pressroom/backend/internal/middleware/validation"
	"github.com/pressroom/backend/pkg/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, userID string, req ingestion.Request) (ingestion.Result, error)
}

type DocumentHandler struct {
	ingester Ingester
}

func NewDocumentHandler(ingester Ingester) *DocumentHandler {
	return &DocumentHandler{ingester: ingester}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req ingestion.Request
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("document", map[string]string{"content": req.Content}); err != nil {
		return writeError(c, "process document", err)
	}
	if req.Source == "" {
		req.Source = "upload"
	}

	userID := validation.UserID(c)
	res, err := h.ingester.Ingest(c.UserContext(), userID, req)
	if err != nil {
		return writeError(c, "process document", err)
	}

	logger.Info("Document uploaded",
		zap.String("user_id", userID),
		zap.String("parent_id", res.ParentID),
		zap.Int("chunks", res.Chunks),
	)
	return c.Status(fiber.StatusCreated).JSON(res)
}
