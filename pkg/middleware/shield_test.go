package middleware_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/alert"
	"github.com/NeuralTrust/TrustShield/pkg/behavior"
	"github.com/NeuralTrust/TrustShield/pkg/engine"
	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/NeuralTrust/TrustShield/pkg/middleware"
	"github.com/NeuralTrust/TrustShield/pkg/penaltybox"
	"github.com/NeuralTrust/TrustShield/pkg/scorer"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	s := store.NewMemoryStore(nil)
	sc := scorer.NewScorer(scorer.Config{
		HoneypotPaths: []string{"/admin-backup"},
	}, nil, logger)
	box := penaltybox.NewBox(s, penaltybox.Config{}, logger, nil)
	analyzer := behavior.NewAnalyzer(s, behavior.Config{}, logger, nil)
	alerts := alert.NewDispatcher(logger, nil, nil, nil, alert.DispatcherConfig{Workers: 1}, nil)
	t.Cleanup(alerts.Close)

	e := engine.New(sc, box, analyzer, alerts, nil, logger)

	app := fiber.New()
	app.Use(middleware.NewShieldMiddleware(e, logger).Middleware())
	app.Get("/api/tours", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Post("/api/bookings", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func TestShieldMiddleware_CleanRequestPasses(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest("GET", "/api/tours", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestShieldMiddleware_InjectionPayloadIsRejected(t *testing.T) {
	app := newApp(t)

	body := strings.NewReader(`{"q":"1' UNION SELECT password FROM users; rm -rf /; cat /etc/passwd"}`)
	req := httptest.NewRequest("POST", "/api/bookings", body)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestShieldMiddleware_HoneypotRouteIsRejected(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest("GET", "/admin-backup", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestShieldMiddleware_RepeatedViolationsGetRetryAfter(t *testing.T) {
	app := newApp(t)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("GET", "/admin-backup", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

		if i == 5 {
			retry := resp.Header.Get(fiber.HeaderRetryAfter)
			require.NotEmpty(t, retry, "banned rejection carries a retry hint")
		}
	}

	// The behavioral pass runs async; give it a moment before cleanup.
	time.Sleep(50 * time.Millisecond)
}
