package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/pressroom/backend/internal/chain"
	"github.com/pressroom/backend/internal/content"
	"github.com/pressroom/backend/internal/middleware/validation"
)

type Generator interface {
	GenerateHeadline(ctx context.Context, userID, text string) (chain.HeadlineResult, error)
	GeneratePressRelease(ctx context.Context, userID string, req content.PressReleaseRequest) (content.PressReleaseResponse, error)
	Edit(ctx context.Context, userID string, in chain.EditInput) (string, error)
	Translate(ctx context.Context, userID string, in chain.TranslationInput) (string, error)
	GenerateAd(ctx context.Context, userID string, in chain.AdInput) (chain.AdStructured, error)
	GenerateSocial(ctx context.Context, userID, pressRelease string) (chain.SocialPosts, error)
}

type GenerateHandler struct {
	generator Generator
}

func NewGenerateHandler(generator Generator) *GenerateHandler {
	return &GenerateHandler{generator: generator}
}

func (h *GenerateHandler) Headline(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("headline", map[string]string{"text": req.Text}); err != nil {
		return writeError(c, "generate headline", err)
	}

	out, err := h.generator.GenerateHeadline(c.UserContext(), validation.UserID(c), req.Text)
	if err != nil {
		return writeError(c, "generate headline", err)
	}
	return c.JSON(out)
}

func (h *GenerateHandler) PressRelease(c *fiber.Ctx) error {
	var req content.PressReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("press_release", map[string]string{
		"company_name": req.CompanyName,
		"main_story":   req.MainStory,
	}); err != nil {
		return writeError(c, "generate press release", err)
	}

	out, err := h.generator.GeneratePressRelease(c.UserContext(), validation.UserID(c), req)
	if err != nil {
		return writeError(c, "generate press release", err)
	}
	return c.JSON(out)
}

func (h *GenerateHandler) Edit(c *fiber.Ctx) error {
	var req chain.EditInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("edit", map[string]string{
		"instruction":     req.Instruction,
		"current_content": req.CurrentContent,
	}); err != nil {
		return writeError(c, "edit content", err)
	}

	out, err := h.generator.Edit(c.UserContext(), validation.UserID(c), req)
	if err != nil {
		return writeError(c, "edit content", err)
	}
	return c.JSON(fiber.Map{"content": out})
}

func (h *GenerateHandler) Translate(c *fiber.Ctx) error {
	var req chain.TranslationInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("translation", map[string]string{
		"text":            req.Text,
		"target_language": req.TargetLanguage,
	}); err != nil {
		return writeError(c, "translate content", err)
	}

	out, err := h.generator.Translate(c.UserContext(), validation.UserID(c), req)
	if err != nil {
		return writeError(c, "translate content", err)
	}
	return c.JSON(fiber.Map{"content": out, "target_language": req.TargetLanguage})
}

func (h *GenerateHandler) Social(c *fiber.Ctx) error {
	var req struct {
		PressRelease string `json:"press_release"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("social_posts", map[string]string{"press_release": req.PressRelease}); err != nil {
		return writeError(c, "generate social posts", err)
	}

	out, err := h.generator.GenerateSocial(c.UserContext(), validation.UserID(c), req.PressRelease)
	if err != nil {
		return writeError(c, "generate social posts", err)
	}
	return c.JSON(out)
}

func (h *GenerateHandler) Ad(c *fiber.Ctx) error {
	var req chain.AdInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := required("ad", map[string]string{
		"platform":      req.Platform,
		"press_release": req.PressRelease,
	}); err != nil {
		return writeError(c, "generate ad", err)
	}

	out, err := h.generator.GenerateAd(c.UserContext(), validation.UserID(c), req)
	if err != nil {
		return writeError(c, "generate ad", err)
	}
	return c.JSON(out)
}
