package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Post("/split-payments", h.SplitPay)
}
