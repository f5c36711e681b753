package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/apierror"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/middleware"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type splitRequest struct {
	Amount       string   `json:"amount"`
	Participants []string `json:"participants"`
}

// Transfer processes an account-to-account transfer from the caller.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid body: amount must be a decimal string")
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return apierror.From(err)
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderID:     caller.ID,
		RecipientRef: req.Recipient,
		Amount:       amount,
	})
	if err != nil {
		return apierror.From(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction":  accounts.NewTransactionView(res.Transaction),
		"balance":      ledger.Format(res.SenderBalance),
		"completed_at": res.CompletedAt,
	})
}

// SplitPay charges every listed participant an equal share.
func (h *Handler) SplitPay(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req splitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid body: amount must be a decimal string")
	}
	total, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return apierror.From(err)
	}

	res, err := h.service.SplitPay(c.UserContext(), SplitPayInput{
		InitiatorID:     caller.ID,
		ParticipantRefs: req.Participants,
		Total:           total,
	})
	if err != nil {
		return apierror.From(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"share":        ledger.Format(res.Share),
		"transactions": accounts.NewTransactionViews(res.Transactions),
	})
}
