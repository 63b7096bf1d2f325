package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/behavior"
	"github.com/NeuralTrust/TrustShield/pkg/engine"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const challengeHeader = "X-Risk-Challenge"

// outcomeTimeout bounds the post-response behavioral update.
const outcomeTimeout = 2 * time.Second

type shieldMiddleware struct {
	engine *engine.Engine
	logger *logrus.Logger
}

// NewShieldMiddleware gates every request through the mitigation engine.
// Banned identifiers and block verdicts are rejected with 403; challenge
// verdicts pass through with a marker header for the edge to act on. The
// behavioral update runs after the handler so it sees the response status.
func NewShieldMiddleware(e *engine.Engine, logger *logrus.Logger) Middleware {
	return &shieldMiddleware{
		engine: e,
		logger: logger,
	}
}

func (m *shieldMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := &types.RequestContext{
			Context:    c.UserContext(),
			Identifier: c.IP(),
			Path:       c.Path(),
			Method:     c.Method(),
			UserAgent:  c.Get(fiber.HeaderUserAgent),
			Headers:    c.GetReqHeaders(),
			Body:       c.Body(),
		}

		decision := m.engine.Evaluate(req)
		if !decision.Allowed {
			if decision.Banned {
				retry := int(time.Until(decision.BannedUntil).Seconds())
				if retry > 0 {
					c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
				}
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "request rejected",
			})
		}

		if decision.Verdict.Classification == types.ClassificationChallenge {
			c.Set(challengeHeader, "required")
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		identifier := req.Identifier
		path := req.Path
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), outcomeTimeout)
			defer cancel()
			m.engine.ObserveOutcome(ctx, identifier, behavior.Outcome{
				IsError: status >= fiber.StatusBadRequest,
				Path:    path,
			})
		}()

		return err
	}
}
