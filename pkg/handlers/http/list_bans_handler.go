package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/penaltybox"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listBansHandler struct {
	logger *logrus.Logger
	box    *penaltybox.Box
}

func NewListBansHandler(logger *logrus.Logger, box *penaltybox.Box) Handler {
	return &listBansHandler{
		logger: logger,
		box:    box,
	}
}

func (h *listBansHandler) Handle(c *fiber.Ctx) error {
	bans, err := h.box.ActiveBans(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("failed to list active bans")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list bans"})
	}
	return c.JSON(fiber.Map{"bans": bans})
}
