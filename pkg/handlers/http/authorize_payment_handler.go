package http

import (
	"strconv"

	"github.com/NeuralTrust/TrustShield/pkg/paymentguard"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type authorizePaymentRequest struct {
	Booking             *types.Booking            `json:"booking"`
	RequesterEmail      string                    `json:"requester_email"`
	Amount              float64                   `json:"amount"`
	Installment         *types.InstallmentPayment `json:"installment,omitempty"`
	PaymentIntentID     string                    `json:"payment_intent_id"`
	Fingerprint         string                    `json:"fingerprint,omitempty"`
	FingerprintIssuedAt int64                     `json:"fingerprint_issued_at,omitempty"`
}

type authorizePaymentHandler struct {
	logger *logrus.Logger
	guard  *paymentguard.Guard
}

// NewAuthorizePaymentHandler exposes the payment guard to the booking
// subsystem. The booking view travels in the request; the guard decides,
// the booking subsystem applies.
func NewAuthorizePaymentHandler(logger *logrus.Logger, guard *paymentguard.Guard) Handler {
	return &authorizePaymentHandler{
		logger: logger,
		guard:  guard,
	}
}

func (h *authorizePaymentHandler) Handle(c *fiber.Ctx) error {
	var req authorizePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Booking == nil || req.Booking.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "booking is required"})
	}
	if req.PaymentIntentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_intent_id is required"})
	}

	if fp := h.guard.VerifyFingerprint(req.Booking.ID, req.Fingerprint, req.Amount, req.FingerprintIssuedAt); !fp.Allowed {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"allowed": false,
			"stage":   fp.Stage,
			"reason":  fp.Reason,
		})
	}

	verdict := h.guard.Authorize(
		c.UserContext(),
		req.Booking,
		req.RequesterEmail,
		req.Amount,
		req.Installment,
		req.PaymentIntentID,
	)
	if !verdict.Allowed {
		status := fiber.StatusUnprocessableEntity
		if verdict.Stage == "rate" {
			status = fiber.StatusTooManyRequests
			if secs := int(verdict.RetryAfter.Seconds()); secs > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"allowed": false,
			"stage":   verdict.Stage,
			"reason":  verdict.Reason,
		})
	}

	return c.JSON(fiber.Map{"allowed": true})
}
