package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/atm-ledger/internal/policy"
	"github.com/josh-kwaku/atm-ledger/internal/repository"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	StorePath      string        `env:"STORE_PATH" envDefault:"users.json"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTExpiry     time.Duration `env:"JWT_EXPIRY" envDefault:"15m"`
	AdminUsername string        `env:"ADMIN_USERNAME" envDefault:"admin"`

	LoginRatePerMinute float64 `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginBurst         int     `env:"LOGIN_BURST" envDefault:"5"`

	MinBalance           decimal.Decimal `env:"MIN_BALANCE" envDefault:"10.00"`
	DailyWithdrawalLimit decimal.Decimal `env:"DAILY_WITHDRAWAL_LIMIT" envDefault:"1000.00"`
	LedgerTZ             string          `env:"LEDGER_TZ" envDefault:"Local"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	location *time.Location
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MinBalance.IsNegative() {
		return fmt.Errorf("MIN_BALANCE must not be negative: %w", ErrInvalidConfig)
	}
	if !c.DailyWithdrawalLimit.IsPositive() {
		return fmt.Errorf("DAILY_WITHDRAWAL_LIMIT must be positive: %w", ErrInvalidConfig)
	}
	if c.PersistTimeout < 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must not be negative: %w", ErrInvalidConfig)
	}

	loc, err := loadLocation(c.LedgerTZ)
	if err != nil {
		return fmt.Errorf("LEDGER_TZ %q: %w: %w", c.LedgerTZ, ErrInvalidConfig, err)
	}
	c.location = loc
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// RequireJWTSecret is checked by binaries that issue tokens.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required: %w", ErrInvalidConfig)
	}
	return nil
}

// Location is the zone used for calendar-day limits and naive timestamps.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *Config) Limits() policy.Limits {
	return policy.Limits{
		MinBalance: c.MinBalance,
		DailyLimit: c.DailyWithdrawalLimit,
		Location:   c.Location(),
	}
}

func (c *Config) Pool() repository.PoolConfig {
	return repository.PoolConfig{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnMaxIdleTime: c.DBConnMaxIdleTime,
	}
}

func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}
