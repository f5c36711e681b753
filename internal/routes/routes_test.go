package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/p2p_wallet/internal/apierror"
	"github.com/congo-pay/p2p_wallet/internal/config"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
	"github.com/congo-pay/p2p_wallet/internal/middleware"
	"github.com/congo-pay/p2p_wallet/internal/notification"
	"github.com/congo-pay/p2p_wallet/internal/social"
)

const testSecret = "routes-test-secret"

type testEnv struct {
	app      *fiber.App
	store    ledger.Store
	graph    *social.MemoryGraph
	notes    *notification.Recorder
	verifier *middleware.TokenVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	env := &testEnv{
		store:    ledger.NewInMemory(),
		graph:    social.NewMemoryGraph(),
		notes:    &notification.Recorder{},
		verifier: middleware.NewTokenVerifier(testSecret),
	}
	logger := logging.Discard()
	env.app = fiber.New(fiber.Config{ErrorHandler: apierror.Handler(logger)})
	err := Setup(env.app, Deps{
		Cfg: config.Config{
			Env:             "test",
			JWTSecret:       testSecret,
			IdempotencyTTL:  time.Minute,
			MoveTimeout:     time.Second,
			ConflictRetries: 2,
		},
		Cache:    cache,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Store:    env.store,
		Graph:    env.graph,
		Notifier: env.notes,
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) account(t *testing.T, username, balance string, admin bool) ledger.Account {
	t.Helper()
	acc := ledger.Account{
		ID:        uuid.NewString(),
		Username:  username,
		Balance:   decimal.RequireFromString(balance),
		IsAdmin:   admin,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.store.CreateAccount(context.Background(), acc))
	return acc
}

func (e *testEnv) do(t *testing.T, method, path, accountID, key, body string) (int, map[string]any, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if accountID != "" {
		token, err := e.verifier.Issue(accountID, time.Minute)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, resp.Header.Get("Idempotent-Replayed")
}

func TestTransferFlowWithIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	alice := env.account(t, "alice", "100.00", false)
	bob := env.account(t, "bob", "0", false)

	status, body, replayed := env.do(t, fiber.MethodPost, "/api/v1/transfers", alice.ID, "k1", `{"recipient":"bob","amount":"40.00"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "60.00", body["balance"])
	assert.Empty(t, replayed)

	status, again, replayed := env.do(t, fiber.MethodPost, "/api/v1/transfers", alice.ID, "k1", `{"recipient":"bob","amount":"40.00"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "true", replayed)
	assert.Equal(t, body["transaction"], again["transaction"])

	status, body, _ = env.do(t, fiber.MethodPost, "/api/v1/transfers", alice.ID, "k2", `{"recipient":"bob","amount":"70.00"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient funds", body["error"])

	status, _, _ = env.do(t, fiber.MethodPost, "/api/v1/transfers", alice.ID, "k3", `{"recipient":"bob","amount":10}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body, _ = env.do(t, fiber.MethodGet, "/api/v1/balance", bob.ID, "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "40.00", body["balance"])
}

func TestRequestsRequireTokenAndAddressability(t *testing.T) {
	env := newTestEnv(t)
	alice := env.account(t, "alice", "0", false)
	bob := env.account(t, "bob", "25.00", false)

	status, _, _ := env.do(t, fiber.MethodPost, "/api/v1/requests", "", "r0", `{"kind":"peer","payer":"bob","amount":"10"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = env.do(t, fiber.MethodPost, "/api/v1/requests", alice.ID, "r1", `{"kind":"peer","payer":"bob","amount":"10"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	env.graph.Befriend(alice.ID, bob.ID)
	status, body, _ := env.do(t, fiber.MethodPost, "/api/v1/requests", alice.ID, "r2", `{"kind":"peer","payer":"bob","amount":"10"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	requestID := body["id"].(string)

	status, body, _ = env.do(t, fiber.MethodGet, "/api/v1/requests/incoming?status=pending", bob.ID, "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["requests"], 1)

	status, _, _ = env.do(t, fiber.MethodPost, "/api/v1/requests/"+requestID+"/respond", alice.ID, "a0", `{"action":"accept"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body, _ = env.do(t, fiber.MethodPost, "/api/v1/requests/"+requestID+"/respond", bob.ID, "a1", `{"action":"accept"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "15.00", body["balance"])

	status, _, _ = env.do(t, fiber.MethodPost, "/api/v1/requests/"+requestID+"/respond", bob.ID, "a2", `{"action":"reject"}`)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestAdminReverseAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	root := env.account(t, "root", "0", true)
	alice := env.account(t, "alice", "50.00", false)
	env.account(t, "bob", "0", false)

	status, body, _ := env.do(t, fiber.MethodPost, "/api/v1/transfers", alice.ID, "t1", `{"recipient":"bob","amount":"20"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	txID := body["transaction"].(map[string]any)["id"].(string)

	status, _, _ = env.do(t, fiber.MethodPost, "/api/v1/admin/transactions/"+txID+"/reverse", alice.ID, "rv0", "")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body, _ = env.do(t, fiber.MethodPost, "/api/v1/admin/transactions/"+txID+"/reverse", root.ID, "rv1", "")
	require.Equal(t, fiber.StatusOK, status, body)

	status, _, _ = env.do(t, fiber.MethodPost, "/api/v1/admin/transactions/"+txID+"/reverse", root.ID, "rv2", "")
	assert.Equal(t, fiber.StatusConflict, status)

	status, body, _ = env.do(t, fiber.MethodGet, "/api/v1/balance", alice.ID, "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "50.00", body["balance"])

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "p2p_wallet_ledger_operations_total")
	assert.Contains(t, string(raw), "p2p_wallet_reversal_attempts_total")

	status, body, _ = env.do(t, fiber.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "in-memory", body["status"].(map[string]any)["postgres"])
}
