package http

import (
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const defaultEventsLookback = 24 * time.Hour

type listEventsHandler struct {
	logger *logrus.Logger
	audit  *repository.AuditRepository
}

func NewListEventsHandler(logger *logrus.Logger, audit *repository.AuditRepository) Handler {
	return &listEventsHandler{
		logger: logger,
		audit:  audit,
	}
}

func (h *listEventsHandler) Handle(c *fiber.Ctx) error {
	if h.audit == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "audit persistence is not configured"})
	}

	since := time.Now().Add(-defaultEventsLookback)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "since must be RFC3339"})
		}
		since = parsed
	}

	events, err := h.audit.ListRecentEvents(c.UserContext(), since, c.QueryInt("limit"))
	if err != nil {
		h.logger.WithError(err).Error("failed to list security events")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list events"})
	}
	return c.JSON(fiber.Map{"events": events})
}
