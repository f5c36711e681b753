package accounts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/apierror"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Username string `json:"username"`
	Merchant bool   `json:"merchant"`
	Admin    bool   `json:"admin"`
}

type balanceRequest struct {
	Amount string `json:"amount"`
}

// Me returns the authenticated account.
func (h *Handler) Me(c *fiber.Ctx) error {
	acc, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return c.Status(http.StatusOK).JSON(NewAccountView(acc))
}

// Balance returns the caller's current balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	acc, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	balance, err := h.service.Balance(c.UserContext(), acc.ID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id": balance.AccountID,
		"balance":    ledger.Format(balance.Amount),
		"as_of":      balance.AsOf,
	})
}

// Transactions lists ledger records touching the caller.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	acc, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	txns, err := h.service.Transactions(c.UserContext(), acc.ID, limit, offset)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": NewTransactionViews(txns)})
}

// Merchants lists merchant accounts a user may subscribe to.
func (h *Handler) Merchants(c *fiber.Ctx) error {
	merchants, err := h.service.ListMerchants(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	out := make([]fiber.Map, 0, len(merchants))
	for _, m := range merchants {
		out = append(out, fiber.Map{"id": m.ID, "username": m.Username})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"merchants": out})
}

// List returns every account (admin).
func (h *Handler) List(c *fiber.Ctx) error {
	all, err := h.service.List(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	out := make([]AccountView, 0, len(all))
	for _, acc := range all {
		out = append(out, NewAccountView(acc))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out})
}

// Create registers an account (admin).
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acc, err := h.service.Create(c.UserContext(), CreateInput{Username: req.Username, Merchant: req.Merchant, Admin: req.Admin})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(NewAccountView(acc))
}

// OverrideBalance sets an account balance (admin).
func (h *Handler) OverrideBalance(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req balanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal string")
	}
	amount, err := ledger.ParseBalance(req.Amount)
	if err != nil {
		return mapError(err)
	}

	adj, err := h.service.OverrideBalance(c.UserContext(), ActorOf(caller), c.Params("accountId"), amount)
	if err != nil {
		return mapError(err)
	}
	resp := fiber.Map{
		"account_id": c.Params("accountId"),
		"previous":   ledger.Format(adj.Previous),
		"balance":    ledger.Format(adj.Balance),
	}
	if adj.Transaction != nil {
		resp["transaction"] = NewTransactionView(*adj.Transaction)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// AllTransactions lists every ledger record (admin).
func (h *Handler) AllTransactions(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	txns, err := h.service.AllTransactions(c.UserContext(), ActorOf(caller), limit, offset)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": NewTransactionViews(txns)})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidUsername):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(http.StatusForbidden, "admin privileges required")
	default:
		return apierror.From(err)
	}
}

func page(c *fiber.Ctx) (int, int, error) {
	limit, offset := defaultPageSize, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, fiber.NewError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, fiber.NewError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}
