// Package app provides the top-level application lifecycle management for the
// bond ledger daemon. It wires together all dependencies (stores, caches, blob
// storage, services, and notifications) and starts the appropriate goroutines
// based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/bondledgerd/internal/config"
	"github.com/alanyoungcy/bondledgerd/internal/crypto"
	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.cfg.Mode = strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("isin", a.cfg.Bond.ISIN),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.cfg.Mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "archive":
		return a.ArchiveMode(ctx, deps)
	case "replay":
		return a.ReplayMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// issuerAccount derives the issuer account address from the configured key
// source.
func (a *App) issuerAccount() (domain.Account, error) {
	acct, err := crypto.ResolveIssuer(crypto.KeySource{
		Hex:         a.cfg.Issuer.PrivateKey,
		KeyfilePath: a.cfg.Issuer.EncryptedKeyPath,
		Passphrase:  a.cfg.Issuer.KeyPassword,
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("app: resolve issuer identity: %w", err)
	}
	return acct, nil
}

// termsFromConfig maps the [bond] config section onto the domain terms, with
// the issuer address derived from the signing key.
func termsFromConfig(bc config.BondConfig, issuer domain.Account) domain.Terms {
	caps := make([]domain.Capability, 0, len(bc.Capabilities))
	for _, c := range bc.Capabilities {
		caps = append(caps, domain.Capability(c))
	}
	return domain.Terms{
		ISIN:              bc.ISIN,
		Name:              bc.Name,
		Symbol:            bc.Symbol,
		Decimals:          uint8(bc.Decimals),
		Currency:          bc.Currency,
		CurrencyOfCoupon:  bc.CurrencyOfCoupon,
		Denomination:      bc.Denomination,
		IssueVolume:       bc.IssueVolume,
		CouponRateBps:     bc.CouponRateBps,
		CouponType:        domain.CouponType(bc.CouponType),
		CouponFrequency:   bc.CouponFrequency,
		IssueDate:         bc.IssueDate.UTC(),
		MaturityDate:      bc.MaturityDate.UTC(),
		DayCountBasis:     domain.DayCountBasis(bc.DayCountBasis),
		Issuer:            issuer,
		Capabilities:      caps,
		IssuerConvertible: bc.IssuerConvertible,
	}
}

// distributionFromConfig maps the [[bond.distribution]] entries onto domain
// holdings.
func distributionFromConfig(bc config.BondConfig) []domain.Holding {
	out := make([]domain.Holding, 0, len(bc.Distribution))
	for _, d := range bc.Distribution {
		out = append(out, domain.Holding{
			Account: domain.HexToAccount(d.Account),
			Amount:  d.Amount,
		})
	}
	return out
}
