package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/penaltybox"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type unbanHandler struct {
	logger *logrus.Logger
	box    *penaltybox.Box
}

func NewUnbanHandler(logger *logrus.Logger, box *penaltybox.Box) Handler {
	return &unbanHandler{
		logger: logger,
		box:    box,
	}
}

func (h *unbanHandler) Handle(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if identifier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identifier is required"})
	}
	if err := h.box.Unban(c.UserContext(), identifier); err != nil {
		h.logger.WithError(err).WithField("identifier", identifier).Error("failed to lift ban")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to lift ban"})
	}
	h.logger.WithField("identifier", identifier).Info("ban lifted by operator")
	return c.SendStatus(fiber.StatusNoContent)
}
