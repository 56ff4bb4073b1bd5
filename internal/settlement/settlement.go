// Package settlement implements the external collaborators that option
// exercises hand off to: cash repayment for call and put, equity issuance for
// conversion. Execution happens on rails outside this process; the
// collaborators durably record the instruction and alert the operator, and a
// recording failure aborts the whole settlement.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
	"github.com/alanyoungcy/bondledgerd/internal/notify"
)

// CashRepayment records call and put settlements for the cash payment rail.
type CashRepayment struct {
	store    domain.SettlementStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewCashRepayment creates a CashRepayment collaborator.
func NewCashRepayment(store domain.SettlementStore, notifier *notify.Notifier, logger *slog.Logger) *CashRepayment {
	return &CashRepayment{
		store:    store,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "cash_repayment")),
	}
}

// Settle durably records the repayment instruction. The ledger only mutates
// after this returns nil.
func (c *CashRepayment) Settle(ctx context.Context, instr domain.SettlementInstruction) error {
	if err := c.store.Create(ctx, instr); err != nil {
		return fmt.Errorf("settlement: record %s repayment %s: %w", instr.Kind, instr.ID, err)
	}

	c.logger.InfoContext(ctx, "repayment instruction recorded",
		slog.String("id", instr.ID),
		slog.String("kind", string(instr.Kind)),
		slog.String("holder", instr.Holder.Hex()),
		slog.Uint64("amount", instr.Amount),
	)

	if c.notifier != nil {
		title := fmt.Sprintf("Bond %s settled", instr.Kind)
		msg := fmt.Sprintf("holder %s, principal %d, instruction %s",
			instr.Holder.Hex(), instr.Amount, instr.ID)
		if err := c.notifier.Notify(ctx, "settlement."+string(instr.Kind), title, msg); err != nil {
			// Alerting is best effort; the instruction is already recorded.
			c.logger.WarnContext(ctx, "settlement alert failed",
				slog.String("id", instr.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// EquityIssuance records conversion settlements for the share registry.
type EquityIssuance struct {
	store    domain.SettlementStore
	notifier *notify.Notifier
	logger   *slog.Logger

	// sharesPerUnit is the conversion ratio: shares issued per denomination
	// unit of surrendered principal.
	sharesPerUnit uint64
	denomination  uint64
}

// NewEquityIssuance creates an EquityIssuance collaborator for the given
// conversion ratio.
func NewEquityIssuance(store domain.SettlementStore, notifier *notify.Notifier, logger *slog.Logger, sharesPerUnit, denomination uint64) *EquityIssuance {
	return &EquityIssuance{
		store:         store,
		notifier:      notifier,
		logger:        logger.With(slog.String("component", "equity_issuance")),
		sharesPerUnit: sharesPerUnit,
		denomination:  denomination,
	}
}

// Shares returns the number of shares a surrendered principal converts into.
func (e *EquityIssuance) Shares(amount uint64) uint64 {
	if e.denomination == 0 {
		return 0
	}
	return amount / e.denomination * e.sharesPerUnit
}

// Settle durably records the conversion instruction and the share count it
// entitles the holder to.
func (e *EquityIssuance) Settle(ctx context.Context, instr domain.SettlementInstruction) error {
	if err := e.store.Create(ctx, instr); err != nil {
		return fmt.Errorf("settlement: record conversion %s: %w", instr.ID, err)
	}

	shares := e.Shares(instr.Amount)
	e.logger.InfoContext(ctx, "conversion instruction recorded",
		slog.String("id", instr.ID),
		slog.String("holder", instr.Holder.Hex()),
		slog.Uint64("amount", instr.Amount),
		slog.Uint64("shares", shares),
	)

	if e.notifier != nil {
		title := "Bond converted to equity"
		msg := fmt.Sprintf("holder %s, principal %d, shares %d, instruction %s",
			instr.Holder.Hex(), instr.Amount, shares, instr.ID)
		if err := e.notifier.Notify(ctx, "settlement.convert", title, msg); err != nil {
			e.logger.WarnContext(ctx, "settlement alert failed",
				slog.String("id", instr.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.Settler = (*CashRepayment)(nil)
	_ domain.Settler = (*EquityIssuance)(nil)
)
