package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
)

// RegisterAccountRoutes wires the caller's own account views.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler) {
	r.Get("/me", h.Me)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Get("/merchants", h.Merchants)
}
