package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/atm-ledger/internal/credential"
	"github.com/josh-kwaku/atm-ledger/internal/ledger"
	"github.com/josh-kwaku/atm-ledger/internal/metrics"
	"github.com/josh-kwaku/atm-ledger/internal/policy"
	"github.com/josh-kwaku/atm-ledger/internal/service"
	"github.com/josh-kwaku/atm-ledger/internal/testutil"
)

const testSecret = "router-secret"

type alwaysUp struct{}

func (alwaysUp) Ping(context.Context) error { return nil }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := ledger.New(nil, 0, nil)
	require.NoError(t, err)
	limits := policy.Limits{MinBalance: policy.DefaultMinBalance, DailyLimit: policy.DefaultDailyLimit, Location: time.UTC}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	accounts := service.NewAccountService(store, credential.NewHasher(), limits,
		service.WithClock(func() time.Time { return testutil.FixedTime }),
		service.WithObserver(m),
	)

	h := NewRouter(Options{
		JWTSecret:     testSecret,
		JWTExpiry:     time.Hour,
		AdminUsername: "admin",
	}, accounts, alwaysUp{}, m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &testServer{t: t, handler: h}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) register(username, password string) {
	s.t.Helper()
	rec, _ := s.do(http.MethodPost, "/api/v1/users", "", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func balanceOf(t *testing.T, env envelope) string {
	t.Helper()
	var data struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Balance
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "pw")

	rec, env := s.do(http.MethodPost, "/api/v1/users", "", map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USERNAME_TAKEN", env.Error.Code)

	rec, env = s.do(http.MethodPost, "/api/v1/users", "", map[string]string{"username": "", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	wrongRec, wrong := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "bad"})
	unknownRec, unknown := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "nobody", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, wrongRec.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownRec.Code)
	assert.Equal(t, "Incorrect username or password", wrong.Error.Message)
	assert.Equal(t, wrong.Error, unknown.Error)

	assert.NotEmpty(t, s.login("alice", "pw"))
}

func TestAccountFlow(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "pw")
	s.register("bob", "pw")
	token := s.login("alice", "pw")

	rec, env := s.do(http.MethodPost, "/api/v1/accounts/alice/deposits", token, map[string]string{"amount": "2000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2000.00", balanceOf(t, env))

	rec, env = s.do(http.MethodPost, "/api/v1/accounts/alice/withdrawals", token, map[string]any{"amount": 900})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1100.00", balanceOf(t, env))

	rec, env = s.do(http.MethodPost, "/api/v1/accounts/alice/withdrawals", token, map[string]string{"amount": "150"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "DAILY_LIMIT_EXCEEDED", env.Error.Code)
	var details struct {
		Remaining string `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	assert.Equal(t, "100.00", details.Remaining)

	rec, env = s.do(http.MethodGet, "/api/v1/accounts/alice/withdrawal-limit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"remaining_today":"100.00"`)

	rec, env = s.do(http.MethodPost, "/api/v1/accounts/alice/withdrawals", token, map[string]string{"amount": "1095"})
	assert.Equal(t, "BELOW_MINIMUM_BALANCE", env.Error.Code)

	rec, env = s.do(http.MethodPost, "/api/v1/accounts/alice/transfers", token, map[string]string{"recipient": "bob", "amount": "50.25"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1049.75", balanceOf(t, env))

	transferErrors := []struct {
		recipient string
		amount    string
		code      string
	}{
		{"alice", "1", "SELF_TRANSFER_NOT_ALLOWED"},
		{"ghost", "1", "RECIPIENT_NOT_FOUND"},
		{"bob", "5000", "INSUFFICIENT_FUNDS"},
		{"bob", "0.001", "INVALID_AMOUNT"},
	}
	for _, tc := range transferErrors {
		_, env = s.do(http.MethodPost, "/api/v1/accounts/alice/transfers", token, map[string]string{"recipient": tc.recipient, "amount": tc.amount})
		assert.Equal(t, tc.code, env.Error.Code, "recipient %s amount %s", tc.recipient, tc.amount)
	}

	rec, env = s.do(http.MethodGet, "/api/v1/accounts/alice/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []struct {
		Type   string `json:"type"`
		Amount string `json:"amount"`
		To     string `json:"to"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 3)
	assert.Equal(t, "transfer_out", history[0].Type)
	assert.Equal(t, "bob", history[0].To)
	assert.Equal(t, "50.25", history[0].Amount)
	assert.Equal(t, "deposit", history[2].Type)

	rec, env = s.do(http.MethodGet, "/api/v1/accounts/bob/balance", s.login("bob", "pw"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50.25", balanceOf(t, env))
}

func TestAccountRoutes_RequireOwnership(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "pw")
	s.register("bob", "pw")
	token := s.login("alice", "pw")

	rec, _ := s.do(http.MethodGet, "/api/v1/accounts/alice/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := s.do(http.MethodGet, "/api/v1/accounts/bob/balance", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", env.Error.Code)

	rec, _ = s.do(http.MethodPost, "/api/v1/accounts/bob/withdrawals", token, map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "old")
	token := s.login("alice", "old")

	rec, env := s.do(http.MethodPut, "/api/v1/accounts/alice/password", token, map[string]string{"old_password": "wrong", "new_password": "new"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	rec, _ = s.do(http.MethodPut, "/api/v1/accounts/alice/password", token, map[string]string{"old_password": "old", "new_password": "new"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/v1/accounts/alice/balance", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", env.Error.Code)

	fresh := s.login("alice", "new")
	rec, _ = s.do(http.MethodGet, "/api/v1/accounts/alice/balance", fresh, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	s.register("admin", "root")
	s.register("alice", "pw")
	adminToken := s.login("admin", "root")
	userToken := s.login("alice", "pw")

	rec, env := s.do(http.MethodGet, "/api/v1/admin/accounts", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, env = s.do(http.MethodGet, "/api/v1/admin/accounts", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []struct {
		Username         string `json:"username"`
		Balance          string `json:"balance"`
		TransactionCount int    `json:"transaction_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "admin", summaries[0].Username)
	assert.Equal(t, "0.00", summaries[1].Balance)

	rec, env = s.do(http.MethodPut, "/api/v1/admin/accounts/ghost/password", adminToken, map[string]string{"new_password": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", env.Error.Code)

	rec, _ = s.do(http.MethodPut, "/api/v1/admin/accounts/alice/password", adminToken, map[string]string{"new_password": "reset"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/accounts/alice/balance", userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	s.login("alice", "reset")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "pw")

	rec, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `atm_ledger_operations_total{operation="register",outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `atm_http_requests_total`)
}
