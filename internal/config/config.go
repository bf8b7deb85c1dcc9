// Package config holds the process configuration and its loader.
package config

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/and161185/passby/internal/events"
	"github.com/and161185/passby/internal/limiter"
	"github.com/and161185/passby/internal/service"
	"github.com/and161185/passby/internal/sweeper"
	"github.com/and161185/passby/internal/tokencache"
)

// Config is the root configuration of passby.
type Config struct {
	HTTPAddr        string        `mapstructure:"http-addr"`
	GRPCAddr        string        `mapstructure:"grpc-addr"`
	Dev             bool          `mapstructure:"dev"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`

	// JWTKey verifies HS256 access tokens.
	JWTKey string `mapstructure:"jwt-key"`
	// TokenKey keys the ephemeral token digest. Derived from JWTKey when empty.
	TokenKey string        `mapstructure:"token-key"`
	TokenTTL time.Duration `mapstructure:"token-ttl"`

	TLS        TLSConfig                `mapstructure:"tls"`
	DB         DBConfig                 `mapstructure:"db"`
	Redis      tokencache.Config        `mapstructure:"redis"`
	NATS       events.Config            `mapstructure:"nats"`
	Limiter    limiter.Config           `mapstructure:"limiter"`
	Correlator service.CorrelatorConfig `mapstructure:"correlator"`
	Ledger     service.LedgerConfig     `mapstructure:"ledger"`
	Sweepers   SweepersConfig           `mapstructure:"sweepers"`
}

// TLSConfig enables TLS on the gRPC listener when both files are set.
type TLSConfig struct {
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

// DBConfig configures PostgreSQL.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MigrateOnStart bool   `mapstructure:"migrate-on-start"`
}

// SweepersConfig configures both expiry sweepers.
type SweepersConfig struct {
	Encounters        sweeper.EncounterConfig `mapstructure:"encounters"`
	EncounterSchedule sweeper.Schedule        `mapstructure:"encounter-schedule"`
	Tokens            sweeper.TokenConfig     `mapstructure:"tokens"`
	TokenSchedule     sweeper.Schedule        `mapstructure:"token-schedule"`
}

// Default returns the production defaults. jwt-key and db.dsn have none.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":8443",
		ShutdownTimeout: 5 * time.Second,
		TokenTTL:        service.DefaultTokenTTL,
		DB:              DBConfig{MigrateOnStart: true},
		Redis:           tokencache.Config{PoolSize: 10},
		NATS:            events.Config{Name: "passby", Queue: "passby", ReconnectWait: 500 * time.Millisecond, Timeout: 3 * time.Second},
		Limiter:         limiter.DefaultConfig(),
		Correlator:      service.DefaultCorrelatorConfig(),
		Ledger:          service.DefaultLedgerConfig(),
		Sweepers: SweepersConfig{
			Encounters:        sweeper.DefaultEncounterConfig(),
			EncounterSchedule: sweeper.Schedule{StartDelay: 30 * time.Second, Interval: 60 * time.Minute},
			Tokens:            sweeper.DefaultTokenConfig(),
			TokenSchedule:     sweeper.Schedule{StartDelay: 20 * time.Second, Interval: 15 * time.Minute},
		},
	}
}

// Validate checks required keys and value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.JWTKey == "" {
		errs = append(errs, errors.New("jwt-key is required"))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required"))
	}
	if len(c.TokenKey) > blake2b.Size {
		errs = append(errs, fmt.Errorf("token-key longer than %d bytes", blake2b.Size))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token-ttl must be positive"))
	}
	if c.Correlator.CorrelationWindow <= 0 || c.Correlator.CooldownWindow <= 0 {
		errs = append(errs, errors.New("correlator windows must be positive"))
	}
	if c.Ledger.EncounterTTL <= 0 || c.Ledger.RecentLimit <= 0 || c.Ledger.RecentCandidates < c.Ledger.RecentLimit {
		errs = append(errs, errors.New("ledger: encounter-ttl and recent-limit must be positive, recent-candidates >= recent-limit"))
	}
	if e := c.Sweepers.Encounters; e.BatchSize <= 0 || e.MaxBatches <= 0 || e.OwnerPageSize <= 0 || e.PerOwnerBatch <= 0 || e.MaxOwners <= 0 {
		errs = append(errs, errors.New("sweepers.encounters: batch limits must be positive"))
	}
	if t := c.Sweepers.Tokens; t.BatchSize <= 0 || t.MaxBatches <= 0 {
		errs = append(errs, errors.New("sweepers.tokens: batch limits must be positive"))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}
	return errors.Join(errs...)
}

// DigestKey returns the key of the token digest.
func (c Config) DigestKey() []byte {
	if c.TokenKey != "" {
		return []byte(c.TokenKey)
	}
	sum := blake2b.Sum256([]byte("passby/token-digest/" + c.JWTKey))
	return sum[:]
}

// EncounterSweep returns the encounter sweeper limits with the ledger TTL.
func (c Config) EncounterSweep() sweeper.EncounterConfig {
	e := c.Sweepers.Encounters
	e.TTL = c.Ledger.EncounterTTL
	return e
}
