package requests

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/apierror"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/middleware"
)

// Handler exposes request lifecycle endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a request handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Kind   string `json:"kind"`
	Payer  string `json:"payer"`
	Amount string `json:"amount"`
}

type splitRequest struct {
	Amount       string   `json:"amount"`
	Participants []string `json:"participants"`
}

type respondRequest struct {
	Action string `json:"action"`
}

type requestResponse struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	RequesterID   string     `json:"requester_id"`
	PayerID       string     `json:"payer_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	BatchID       string     `json:"batch_id,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func newRequestResponse(r Request) requestResponse {
	return requestResponse{
		ID:            r.ID,
		Kind:          string(r.Kind),
		RequesterID:   r.RequesterID,
		PayerID:       r.PayerID,
		Amount:        ledger.Format(r.Amount),
		Status:        string(r.Status),
		BatchID:       r.BatchID,
		TransactionID: r.TransactionID,
		CreatedAt:     r.CreatedAt,
		ResolvedAt:    r.ResolvedAt,
	}
}

func newRequestResponses(reqs []Request) []requestResponse {
	out := make([]requestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, newRequestResponse(r))
	}
	return out
}

// Create stores a peer or merchant request from the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid body: amount must be a decimal string")
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return mapError(err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return mapError(err)
	}

	created, err := h.service.Create(c.UserContext(), CreateInput{
		Kind:        kind,
		RequesterID: caller.ID,
		PayerRef:    req.Payer,
		Amount:      amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(newRequestResponse(created))
}

// CreateSplit stores one share request per participant.
func (h *Handler) CreateSplit(c *fiber.Ctx) error {
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
		return mapError(err)
	}

	created, err := h.service.CreateSplit(c.UserContext(), SplitInput{
		InitiatorID:     caller.ID,
		ParticipantRefs: req.Participants,
		Total:           total,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"batch_id": created[0].BatchID,
		"share":    ledger.Format(created[0].Amount),
		"requests": newRequestResponses(created),
	})
}

// Respond accepts or rejects a request addressed to the caller.
func (h *Handler) Respond(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req respondRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Respond(c.UserContext(), RespondInput{
		RequestID:   c.Params("requestId"),
		ResponderID: caller.ID,
		Action:      Action(req.Action),
	})
	if err != nil {
		return mapError(err)
	}
	body := fiber.Map{"request": newRequestResponse(res.Request)}
	if res.Transaction != nil {
		body["transaction"] = accounts.NewTransactionView(*res.Transaction)
		body["balance"] = ledger.Format(res.PayerBal)
	}
	return c.Status(http.StatusOK).JSON(body)
}

// Incoming lists requests the caller is asked to pay.
func (h *Handler) Incoming(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var kind Kind
	if v := c.Query("kind"); v != "" {
		k, err := ParseKind(v)
		if err != nil {
			return mapError(err)
		}
		kind = k
	}
	var status Status
	if v := c.Query("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		status = st
	}
	reqs, err := h.service.Incoming(c.UserContext(), caller.ID, kind, status)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"requests": newRequestResponses(reqs)})
}

// Outgoing lists requests the caller created.
func (h *Handler) Outgoing(c *fiber.Ctx) error {
	caller, ok := middleware.CurrentAccount(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var kind Kind
	if v := c.Query("kind"); v != "" {
		k, err := ParseKind(v)
		if err != nil {
			return mapError(err)
		}
		kind = k
	}
	reqs, err := h.service.Outgoing(c.UserContext(), caller.ID, kind)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"requests": newRequestResponses(reqs)})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "request not found")
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAddressable), errors.Is(err, ErrNotMerchant):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyResolved):
		return fiber.NewError(http.StatusConflict, "request already resolved")
	case errors.Is(err, ErrPayerInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, ErrSelfRequest),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrNoParticipants),
		errors.Is(err, ErrInitiatorParticipant),
		errors.Is(err, ErrDuplicateParticipant):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return apierror.From(err)
	}
}
