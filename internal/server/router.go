package server

import (
	"context"
	"net/http"
	"time"

	"github.com/josh-kwaku/atm-ledger/internal/handler"
	"github.com/josh-kwaku/atm-ledger/internal/metrics"
	"github.com/josh-kwaku/atm-ledger/internal/middleware"
	"github.com/josh-kwaku/atm-ledger/internal/service"
)

type Options struct {
	JWTSecret          string
	JWTExpiry          time.Duration
	AdminUsername      string
	LoginRatePerMinute float64
	LoginBurst         int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires every route. metricsHandler may be nil to leave /metrics
// unmounted.
func NewRouter(opts Options, accounts *service.AccountService, store Pinger, m *metrics.Metrics, metricsHandler http.Handler) http.Handler {
	healthHandler := handler.NewHealthHandler(store)
	authHandler := handler.NewAuthHandler(accounts, opts.JWTSecret, opts.JWTExpiry, opts.AdminUsername)
	userHandler := handler.NewUserHandler(accounts)
	accountHandler := handler.NewAccountHandler(accounts)
	adminHandler := handler.NewAdminHandler(accounts)

	limiter := middleware.NewRateLimiter(opts.LoginRatePerMinute, opts.LoginBurst)
	requireAuth := middleware.Auth(opts.JWTSecret, accounts)
	requireAdmin := middleware.RequireAdmin(opts.AdminUsername)
	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(middleware.WithUsername(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(middleware.WithUsername(requireAdmin(h)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.Handle("POST /api/v1/users", limiter.Middleware(http.HandlerFunc(userHandler.Register)))
	mux.Handle("POST /api/v1/auth/login", limiter.Middleware(http.HandlerFunc(authHandler.Login)))

	mux.Handle("GET /api/v1/accounts/{username}/balance", authed(accountHandler.Balance))
	mux.Handle("GET /api/v1/accounts/{username}/withdrawal-limit", authed(accountHandler.WithdrawalLimit))
	mux.Handle("POST /api/v1/accounts/{username}/deposits", authed(accountHandler.Deposit))
	mux.Handle("POST /api/v1/accounts/{username}/withdrawals", authed(accountHandler.Withdraw))
	mux.Handle("POST /api/v1/accounts/{username}/transfers", authed(accountHandler.Transfer))
	mux.Handle("GET /api/v1/accounts/{username}/transactions", authed(accountHandler.History))
	mux.Handle("PUT /api/v1/accounts/{username}/password", limiter.Middleware(authed(accountHandler.ChangePassword)))

	mux.Handle("GET /api/v1/admin/accounts", admin(adminHandler.ListAccounts))
	mux.Handle("PUT /api/v1/admin/accounts/{username}/password", admin(adminHandler.ResetPassword))

	var h http.Handler = mux
	if m != nil {
		h = middleware.Metrics(m)(h)
	}
	h = middleware.Logging(h)
	h = middleware.Recovery(h)
	h = middleware.Tracing(h)
	return h
}
