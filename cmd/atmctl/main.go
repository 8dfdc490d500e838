package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	_ "time/tzdata"

	"github.com/spf13/pflag"

	"github.com/josh-kwaku/atm-ledger/internal/config"
	"github.com/josh-kwaku/atm-ledger/internal/credential"
	"github.com/josh-kwaku/atm-ledger/internal/domain"
	"github.com/josh-kwaku/atm-ledger/internal/ledger"
	"github.com/josh-kwaku/atm-ledger/internal/logging"
	"github.com/josh-kwaku/atm-ledger/internal/repository"
	"github.com/josh-kwaku/atm-ledger/internal/service"
)

const usage = `usage: atmctl <command> [flags]

commands:
  accounts         list every account with its balance
  reset-password   set a new password for an account
  import           copy a users.json file into Postgres
  migrate          apply the Postgres schema

reset-password edits the store directly. With the JSON file store, stop
atm-api first: it keeps every account in memory and its next write replaces
the file, undoing the reset.
`

const fileStoreWarning = "warning: atm-api must not be running against this file, or its next write will undo this change\n"

var errUsage = errors.New("invalid usage")

type backend interface {
	Load(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, accounts []domain.Account, changed []string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("atmctl", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, args := args[0], args[1:]
	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	storePath := flags.StringP("store", "f", cfg.StorePath, "Path to the users.json file.")
	dsn := flags.StringP("dsn", "d", cfg.DatabaseURL, "Postgres connection URL. Overrides --store.")

	switch cmd {
	case "accounts":
		if err := flags.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return withBackend(ctx, cfg, *storePath, *dsn, func(b backend) error {
			return listAccounts(ctx, b, out)
		})

	case "reset-password":
		username := flags.StringP("username", "u", "", "Account to reset.")
		password := flags.StringP("password", "p", "", "New password.")
		if err := flags.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *username == "" || *password == "" {
			return fmt.Errorf("reset-password: --username and --password are required: %w", errUsage)
		}
		if *dsn == "" {
			fmt.Fprint(out, fileStoreWarning)
		}
		return withBackend(ctx, cfg, *storePath, *dsn, func(b backend) error {
			return resetPassword(ctx, cfg, b, *username, *password, out)
		})

	case "import":
		if err := flags.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *dsn == "" {
			return fmt.Errorf("import: --dsn is required: %w", errUsage)
		}
		source := repository.NewFileStore(*storePath, cfg.Location())
		return withDB(ctx, cfg, *dsn, func(db *sql.DB) error {
			return importFile(ctx, source, repository.NewPostgresStore(db), out)
		})

	case "migrate":
		if err := flags.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *dsn == "" {
			return fmt.Errorf("migrate: --dsn is required: %w", errUsage)
		}
		return withDB(ctx, cfg, *dsn, func(*sql.DB) error {
			fmt.Fprintln(out, "schema is up to date")
			return nil
		})
	}

	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func withBackend(ctx context.Context, cfg *config.Config, storePath, dsn string, fn func(backend) error) error {
	if dsn == "" {
		return fn(repository.NewFileStore(storePath, cfg.Location()))
	}
	return withDB(ctx, cfg, dsn, func(db *sql.DB) error {
		return fn(repository.NewPostgresStore(db))
	})
}

// withDB opens the database and brings the schema up to date before fn runs.
func withDB(ctx context.Context, cfg *config.Config, dsn string, fn func(*sql.DB) error) error {
	db, err := repository.NewPostgresDB(ctx, dsn, cfg.Pool())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}
	return fn(db)
}

func listAccounts(ctx context.Context, b backend, out io.Writer) error {
	accounts, err := b.Load(ctx)
	if err != nil {
		return fmt.Errorf("listAccounts: %w", err)
	}
	store, err := ledger.New(nil, 0, accounts)
	if err != nil {
		return fmt.Errorf("listAccounts: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tBALANCE\tTRANSACTIONS")
	for _, s := range store.List() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Username, s.Balance.StringFixed(2), s.TransactionCount)
	}
	return tw.Flush()
}

func resetPassword(ctx context.Context, cfg *config.Config, b backend, username, password string, out io.Writer) error {
	accounts, err := b.Load(ctx)
	if err != nil {
		return fmt.Errorf("resetPassword: %w", err)
	}
	store, err := ledger.New(b, cfg.PersistTimeout, accounts)
	if err != nil {
		return fmt.Errorf("resetPassword: %w", err)
	}

	svc := service.NewAccountService(store, credential.NewHasher(), cfg.Limits())
	if err := svc.ResetPassword(ctx, username, password); err != nil {
		return fmt.Errorf("resetPassword: %w", err)
	}

	fmt.Fprintf(out, "password for %s has been reset\n", username)
	return nil
}

// importFile writes every account from source into dest. Rerunning it only
// appends transactions dest has not seen yet.
func importFile(ctx context.Context, source, dest backend, out io.Writer) error {
	accounts, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("importFile: %w", err)
	}

	names := make([]string, len(accounts))
	for i, a := range accounts {
		names[i] = a.Username
	}
	if err := dest.Save(ctx, accounts, names); err != nil {
		return fmt.Errorf("importFile: %w", err)
	}

	fmt.Fprintf(out, "imported %d accounts\n", len(accounts))
	return nil
}
