package reversal

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/apierror"
	"github.com/congo-pay/p2p_wallet/internal/middleware"
)

// Handler exposes the administrative reversal endpoint.
type Handler struct {
	manager *Manager
}

// NewHandler constructs a reversal handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

// Reverse handles POST /admin/transactions/:transactionId/reverse.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req reverseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	res, err := h.manager.Reverse(c.UserContext(), accounts.ActorOf(caller), Input{
		TransactionID: c.Params("transactionId"),
		Reason:        req.Reason,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrForbidden) {
			return fiber.NewError(http.StatusForbidden, "admin role required")
		}
		return apierror.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"original":     accounts.NewTransactionView(res.Original),
		"compensation": accounts.NewTransactionView(res.Compensation),
	})
}
