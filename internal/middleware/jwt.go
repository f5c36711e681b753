package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

const accountLocal = "account"

// AccountLookup resolves the subject of a verified token.
type AccountLookup interface {
	Account(ctx context.Context, id string) (ledger.Account, error)
}

// TokenVerifier checks HS256 bearer tokens issued by the authentication
// service. Only the subject is trusted; role flags are always read from the
// account store.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier for the shared secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Subject validates the token and returns its sub claim.
func (v *TokenVerifier) Subject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

// Issue signs a token for accountID. The wallet never authenticates users
// itself; this exists for operators and tests.
func (v *TokenVerifier) Issue(accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Auth returns a middleware that validates bearer tokens and loads the
// calling account into the request locals.
func Auth(verifier *TokenVerifier, accounts AccountLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		sub, err := verifier.Subject(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		acc, err := accounts.Account(c.UserContext(), sub)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "unknown account")
		}
		if err != nil {
			return err
		}

		c.Locals(accountLocal, acc)
		return c.Next()
	}
}

// RequireAdmin rejects callers whose account lacks the admin flag.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		acc, ok := CurrentAccount(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		if !acc.IsAdmin {
			return fiber.NewError(http.StatusForbidden, "admin privileges required")
		}
		return c.Next()
	}
}

// CurrentAccount returns the account loaded by Auth.
func CurrentAccount(c *fiber.Ctx) (ledger.Account, bool) {
	acc, ok := c.Locals(accountLocal).(ledger.Account)
	return acc, ok
}
