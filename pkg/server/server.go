package server

import (
	"fmt"
	"net/http"

	"github.com/NeuralTrust/TrustShield/pkg/config"
	handlers "github.com/NeuralTrust/TrustShield/pkg/handlers/http"
	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustShield/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type (
	ServerDI struct {
		Config           *config.Config
		Logger           *logrus.Logger
		ShieldMiddleware middleware.Middleware
		AdminMiddleware  middleware.Middleware
		HandlerTransport handlers.HandlerTransport
	}

	// Server hosts the shielded application surface plus the admin API.
	// A second listener exposes the metrics registry on its own port so
	// scrapes never pass through the shield.
	Server struct {
		config           *config.Config
		logger           *logrus.Logger
		router           *fiber.App
		metrics          *http.Server
		shieldMiddleware middleware.Middleware
		adminMiddleware  middleware.Middleware
		handlerTransport handlers.HandlerTransport
	}
)

func NewServer(di ServerDI) *Server {
	router := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	return &Server{
		config:           di.Config,
		logger:           di.Logger,
		router:           router,
		shieldMiddleware: di.ShieldMiddleware,
		adminMiddleware:  di.AdminMiddleware,
		handlerTransport: di.HandlerTransport,
	}
}

// Router exposes the fiber app so the host application can mount its own
// routes behind the shield.
func (s *Server) Router() *fiber.App {
	return s.router
}

func (s *Server) Run() error {
	s.setupHealthCheck()
	s.setupRoutes()

	go s.runMetricsServer()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.WithField("addr", addr).Info("starting server")
	return s.router.Listen(addr)
}

func (s *Server) setupHealthCheck() {
	s.router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func (s *Server) setupRoutes() {
	s.router.Use(s.shieldMiddleware.Middleware())

	v1 := s.router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.Post("/authorize", s.handlerTransport.AuthorizePaymentHandler.Handle)
		}

		admin := v1.Group("/admin", s.adminMiddleware.Middleware())
		{
			admin.Get("/bans", s.handlerTransport.ListBansHandler.Handle)
			admin.Delete("/bans/:identifier", s.handlerTransport.UnbanHandler.Handle)
			admin.Get("/events", s.handlerTransport.ListEventsHandler.Handle)
		}
	}
}

func (s *Server) runMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.Handler())

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.MetricsPort)
	s.metrics = &http.Server{Addr: addr, Handler: mux}

	s.logger.WithField("addr", addr).Info("starting metrics server")
	if err := s.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("metrics server stopped")
	}
}

func (s *Server) Shutdown() error {
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
	return s.router.Shutdown()
}
