package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/reversal"
)

// RegisterAdminRoutes wires administrator-only endpoints. The router is
// expected to already enforce the admin role.
func RegisterAdminRoutes(r fiber.Router, h *accounts.Handler, rev *reversal.Handler) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Post("/accounts/:accountId/balance", h.OverrideBalance)
	r.Get("/transactions", h.AllTransactions)
	r.Post("/transactions/:transactionId/reverse", rev.Reverse)
}
