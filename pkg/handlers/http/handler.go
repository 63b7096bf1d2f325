package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(c *fiber.Ctx) error
}

// HandlerTransport groups the handlers the server mounts.
type HandlerTransport struct {
	ListBansHandler         Handler
	UnbanHandler            Handler
	ListEventsHandler       Handler
	AuthorizePaymentHandler Handler
}
