package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/atm-ledger/internal/config"
	"github.com/josh-kwaku/atm-ledger/internal/credential"
	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/ledger"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
	"github.com/josh-kwaku/atm-ledger/internal/metrics"
	"github.com/josh-kwaku/atm-ledger/internal/repository"
	"github.com/josh-kwaku/atm-ledger/internal/server"
	"github.com/josh-kwaku/atm-ledger/internal/service"
)

type backend interface {
	Load(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, accounts []domain.Account, changed []string) error
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("atm-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	accounts, err := loadAccounts(ctx, store)
	if err != nil {
		slog.Error("failed to load accounts", "error", err)
		os.Exit(1)
	}

	ledgerStore, err := ledger.New(store, cfg.PersistTimeout, accounts)
	if err != nil {
		slog.Error("failed to build ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("ledger loaded", "accounts", ledgerStore.Len())

	m := metrics.New(prometheus.DefaultRegisterer)
	accountService := service.NewAccountService(ledgerStore, credential.NewHasher(), cfg.Limits(), service.WithObserver(m))

	router := server.NewRouter(server.Options{
		JWTSecret:          cfg.JWTSecret,
		JWTExpiry:          cfg.JWTExpiry,
		AdminUsername:      cfg.AdminUsername,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		LoginBurst:         cfg.LoginBurst,
	}, accountService, store, m, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openBackend picks Postgres when DATABASE_URL is set and the JSON file
// otherwise.
func openBackend(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if !cfg.UsePostgres() {
		slog.Info("using file store", "path", cfg.StorePath)
		return repository.NewFileStore(cfg.StorePath, cfg.Location()), func() {}, nil
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.Pool())
	if err != nil {
		return nil, nil, fmt.Errorf("openBackend: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("openBackend: %w", err)
	}

	slog.Info("using postgres store")
	return repository.NewPostgresStore(db), func() { db.Close() }, nil
}

// loadAccounts starts from an empty ledger when the file store cannot be
// decoded, after moving the damaged file aside.
func loadAccounts(ctx context.Context, store backend) ([]domain.Account, error) {
	accounts, err := store.Load(ctx)
	if err == nil {
		return accounts, nil
	}

	fs, ok := store.(*repository.FileStore)
	if !ok || !errors.Is(err, repository.ErrCorruptStore) {
		return nil, fmt.Errorf("loadAccounts: %w", err)
	}

	target, qErr := fs.Quarantine()
	if qErr != nil {
		return nil, fmt.Errorf("loadAccounts: %w: %w", err, qErr)
	}
	slog.Warn("store file was corrupt, starting empty", "error", err, "moved_to", target)
	return nil, nil
}
