package handlers

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/pkg/logger"
)

func writeError(c *fiber.Ctx, op string, err error) error {
	var (
		ve *apperr.ValidationError
		pe *apperr.ProviderError
		qe *apperr.QuotaExceededError
		re *apperr.RateLimitExceededError
	)

	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      ve.Error(),
			"violations": ve.Violations,
		})

	case errors.As(err, &qe):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":     "Monthly token quota exceeded",
			"used":      qe.Used,
			"limit":     qe.Limit,
			"requested": qe.Requested,
		})

	case errors.As(err, &re):
		secs := int(re.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":          re.Error(),
			"retry_after_ms": re.RetryAfter.Milliseconds(),
		})

	case errors.As(err, &pe):
		logger.Error("Provider call failed", zap.String("op", op), zap.Error(err))
		body := fiber.Map{"error": "Upstream model provider failed"}
		if pe.Detail != "" {
			body["detail"] = pe.Detail
		}
		return c.Status(fiber.StatusBadGateway).JSON(body)

	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Request timed out", zap.String("op", op))
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "Request timed out",
		})
	}

	logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to " + op,
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	logger.Debug("Failed to parse request body", zap.Error(err))
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}

// required reports every blank field, in name order.
func required(subject string, fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []apperr.Violation
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			violations = append(violations, apperr.Violation{Field: name, Reason: name + " is required"})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return apperr.NewValidationError(subject, violations...)
}
