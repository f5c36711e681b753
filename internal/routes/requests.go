package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/requests"
)

// RegisterRequestRoutes wires money, merchant and split request endpoints.
func RegisterRequestRoutes(r fiber.Router, h *requests.Handler) {
	r.Post("/requests", h.Create)
	r.Get("/requests/incoming", h.Incoming)
	r.Get("/requests/outgoing", h.Outgoing)
	r.Post("/requests/:requestId/respond", h.Respond)
	r.Post("/split-requests", h.CreateSplit)
}
