// Package config defines the top-level configuration for the bond ledger
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BONDLEDGER_* environment variables.
type Config struct {
	Bond     BondConfig     `toml:"bond"`
	Issuer   IssuerConfig   `toml:"issuer"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Journal  JournalConfig  `toml:"journal"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BondConfig holds the bond terms and the initial distribution. This section
// is read once, at issuance; after the first boot the persisted terms are
// authoritative.
type BondConfig struct {
	ISIN             string `toml:"isin"`
	Name             string `toml:"name"`
	Symbol           string `toml:"symbol"`
	Decimals         int    `toml:"decimals"`
	Currency         string `toml:"currency"`
	CurrencyOfCoupon string `toml:"currency_of_coupon"`
	Denomination     uint64 `toml:"denomination"`
	IssueVolume      uint64 `toml:"issue_volume"`
	CouponRateBps    uint32 `toml:"coupon_rate_bps"`
	CouponType       string `toml:"coupon_type"`
	CouponFrequency  int    `toml:"coupon_frequency"`

	// IssueDate and MaturityDate are TOML datetimes (RFC 3339).
	IssueDate    time.Time `toml:"issue_date"`
	MaturityDate time.Time `toml:"maturity_date"`

	DayCountBasis string `toml:"day_count_basis"`

	// Capabilities lists the embedded options: "call", "put", "convert".
	Capabilities      []string `toml:"capabilities"`
	IssuerConvertible bool     `toml:"issuer_convertible"`

	// SharesPerUnit is the conversion ratio: shares issued per denomination
	// unit of surrendered principal. Required when "convert" is enabled.
	SharesPerUnit uint64 `toml:"shares_per_unit"`

	// Distribution is the initial partition of the issue volume across holder
	// accounts. The amounts must sum to issue_volume and each must be a
	// positive multiple of denomination.
	Distribution []DistributionEntry `toml:"distribution"`
}

// DistributionEntry assigns part of the issue volume to one holder account.
type DistributionEntry struct {
	Account string `toml:"account"`
	Amount  uint64 `toml:"amount"`
}

// IssuerConfig holds the issuer signing key. The issuer account address is
// derived from this key and becomes the Issuer field of the bond terms.
type IssuerConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// JournalConfig controls event journal archival: events older than Retention
// are drained into S3 segments every ArchiveInterval.
type JournalConfig struct {
	Retention       duration `toml:"retention"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "720h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey protects the API endpoints. Empty disables authentication.
	APIKey string `toml:"api_key"`

	// RateLimit bounds requests per client IP per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds operator alerting parameters.
type NotifyConfig struct {
	WebhookURL string   `toml:"webhook_url"`
	Events     []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Bond: BondConfig{
			Decimals:        0,
			CouponType:      "fixed",
			CouponFrequency: 1,
			DayCountBasis:   "ACT/ACT",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bondledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bondledger-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Journal: JournalConfig{
			Retention:       duration{30 * 24 * time.Hour},
			ArchiveInterval: duration{time.Hour},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"bond.matured", "settlement.call", "settlement.put", "settlement.convert", "archive.failed"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"replay":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validCouponTypes enumerates accepted bond.coupon_type values.
var validCouponTypes = map[string]bool{
	"fixed":    true,
	"floating": true,
	"zero":     true,
}

// validDayCountBases enumerates accepted bond.day_count_basis values.
var validDayCountBases = map[string]bool{
	"30/360":  true,
	"ACT/360": true,
	"ACT/365": true,
	"ACT/ACT": true,
}

// validCapabilities enumerates accepted bond.capabilities values.
var validCapabilities = map[string]bool{
	"call":    true,
	"put":     true,
	"convert": true,
}

// isHexAccount reports whether s looks like a 0x-prefixed 20-byte hex address.
func isHexAccount(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, replay, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Bond terms
	if c.Bond.ISIN == "" {
		errs = append(errs, "bond: isin must not be empty")
	}
	if c.Bond.Denomination == 0 {
		errs = append(errs, "bond: denomination must be positive")
	}
	if c.Bond.IssueVolume == 0 {
		errs = append(errs, "bond: issue_volume must be positive")
	} else if c.Bond.Denomination > 0 && c.Bond.IssueVolume%c.Bond.Denomination != 0 {
		errs = append(errs, fmt.Sprintf("bond: issue_volume %d is not a multiple of denomination %d",
			c.Bond.IssueVolume, c.Bond.Denomination))
	}
	if !validCouponTypes[c.Bond.CouponType] {
		errs = append(errs, fmt.Sprintf("bond: unknown coupon_type %q (valid: fixed, floating, zero)", c.Bond.CouponType))
	}
	if !validDayCountBases[c.Bond.DayCountBasis] {
		errs = append(errs, fmt.Sprintf("bond: unknown day_count_basis %q (valid: 30/360, ACT/360, ACT/365, ACT/ACT)", c.Bond.DayCountBasis))
	}
	if c.Bond.IssueDate.IsZero() {
		errs = append(errs, "bond: issue_date must be set")
	}
	if c.Bond.MaturityDate.IsZero() {
		errs = append(errs, "bond: maturity_date must be set")
	} else if !c.Bond.IssueDate.IsZero() && !c.Bond.MaturityDate.After(c.Bond.IssueDate) {
		errs = append(errs, "bond: maturity_date must be after issue_date")
	}
	hasConvert := false
	for _, capability := range c.Bond.Capabilities {
		if !validCapabilities[capability] {
			errs = append(errs, fmt.Sprintf("bond: unknown capability %q (valid: call, put, convert)", capability))
		}
		if capability == "convert" {
			hasConvert = true
		}
	}
	if hasConvert && c.Bond.SharesPerUnit == 0 {
		errs = append(errs, "bond: shares_per_unit must be positive when the convert capability is enabled")
	}

	// Distribution must partition the issue volume.
	if len(c.Bond.Distribution) == 0 {
		errs = append(errs, "bond: distribution must list at least one holder")
	}
	var distTotal uint64
	seen := make(map[string]bool, len(c.Bond.Distribution))
	for i, d := range c.Bond.Distribution {
		if !isHexAccount(d.Account) {
			errs = append(errs, fmt.Sprintf("bond: distribution[%d]: account %q is not a 0x-prefixed 20-byte hex address", i, d.Account))
			continue
		}
		key := strings.ToLower(d.Account)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("bond: distribution[%d]: duplicate account %s", i, d.Account))
		}
		seen[key] = true
		if d.Amount == 0 || (c.Bond.Denomination > 0 && d.Amount%c.Bond.Denomination != 0) {
			errs = append(errs, fmt.Sprintf("bond: distribution[%d]: amount %d is not a positive multiple of denomination %d",
				i, d.Amount, c.Bond.Denomination))
		}
		distTotal += d.Amount
	}
	if c.Bond.IssueVolume > 0 && len(c.Bond.Distribution) > 0 && distTotal != c.Bond.IssueVolume {
		errs = append(errs, fmt.Sprintf("bond: distribution sums to %d, issue_volume is %d", distTotal, c.Bond.IssueVolume))
	}

	// Issuer: one key source must be specified.
	if c.Issuer.PrivateKey == "" && c.Issuer.EncryptedKeyPath == "" {
		errs = append(errs, "issuer: either private_key or encrypted_key_path must be set")
	}
	if c.Issuer.EncryptedKeyPath != "" && c.Issuer.KeyPassword == "" {
		errs = append(errs, "issuer: key_password is required when encrypted_key_path is set")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis: the serve loop needs the bus, cache, and writer lock.
	if mode == "serve" || mode == "full" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3: needed for archival and replay.
	if mode == "archive" || mode == "replay" || mode == "full" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Journal
	if c.Journal.Retention.Duration <= 0 {
		errs = append(errs, "journal: retention must be positive")
	}
	if c.Journal.ArchiveInterval.Duration <= 0 {
		errs = append(errs, "journal: archive_interval must be positive")
	}

	// Server
	if mode == "serve" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
