// Package apierror translates ledger failures into HTTP responses.
package apierror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

// From maps a ledger error onto a fiber error. Unknown errors become 500s
// with a generic message so storage details never reach the client.
func From(err error) *fiber.Error {
	var fe *fiber.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidMovement),
		errors.Is(err, ledger.ErrSameAccount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, ledger.ErrAlreadyReversed):
		return fiber.NewError(http.StatusConflict, "transaction already reversed")
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return fiber.NewError(http.StatusNotFound, "transaction not found")
	case errors.Is(err, ledger.ErrAccountExists):
		return fiber.NewError(http.StatusConflict, "account already exists")
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return fiber.NewError(http.StatusConflict, "concurrent update, retry the request")
	case errors.Is(err, ledger.ErrPersistence):
		return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}

// Handler renders every error as {"error": "..."} and logs server-side
// failures with the request id.
func Handler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		fe := From(err)
		if fe.Code >= http.StatusInternalServerError && logger != nil {
			reqID, _ := c.Locals("X-Request-ID").(string)
			logger.Error("request failed",
				slog.String("request_id", reqID),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
}
