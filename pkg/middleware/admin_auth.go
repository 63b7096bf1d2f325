package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

type adminAuthMiddleware struct {
	logger *logrus.Logger
	token  string
}

// NewAdminAuthMiddleware protects the admin surface with a static bearer
// token. An empty configured token disables the admin API entirely.
func NewAdminAuthMiddleware(logger *logrus.Logger, token string) Middleware {
	return &adminAuthMiddleware{
		logger: logger,
		token:  token,
	}
}

func (m *adminAuthMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if m.token == "" {
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin API is disabled"})
		}

		authHeader := ctx.Get(authorizationHeader)
		if authHeader == "" {
			m.logger.Debug("no authorization header provided")
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authorization required"})
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			m.logger.Debug("invalid authorization header format")
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization format"})
		}

		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(tokenString), []byte(m.token)) != 1 {
			m.logger.Debug("invalid admin token")
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		return ctx.Next()
	}
}
