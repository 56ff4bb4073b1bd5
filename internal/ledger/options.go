package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// Call settles the issuer's call option against one holder: the holder's
// entire principal is zeroed, issue volume shrinks by the same amount, and a
// cash-repayment instruction is handed to the external settlement
// collaborator. Only the issuer may call.
func (l *Ledger) Call(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	issuer, err := l.isIssuer(ctx, caller)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("ledger: call: resolve issuer: %w", err)
	}
	if !issuer {
		return domain.SettlementResult{}, fmt.Errorf("ledger: call by %s: %w",
			caller, domain.ErrUnauthorized)
	}
	return l.settle(ctx, domain.CapabilityCall, domain.SettlementCall, holder, data)
}

// Put settles the holder's put option: the caller surrenders their own
// holding for early cash repayment.
func (l *Ledger) Put(ctx context.Context, caller domain.Account, data []byte) (domain.SettlementResult, error) {
	return l.settle(ctx, domain.CapabilityPut, domain.SettlementPut, caller, data)
}

// Convert settles the conversion option: the holding is exchanged for equity
// through the equity-issuance collaborator. The holder may always initiate;
// the issuer may initiate only when the bond terms grant issuer-initiated
// conversion.
func (l *Ledger) Convert(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	if caller != holder {
		if !l.terms.IssuerConvertible {
			return domain.SettlementResult{}, fmt.Errorf("ledger: convert of %s by %s: %w",
				holder, caller, domain.ErrUnauthorized)
		}
		issuer, err := l.isIssuer(ctx, caller)
		if err != nil {
			return domain.SettlementResult{}, fmt.Errorf("ledger: convert: resolve issuer: %w", err)
		}
		if !issuer {
			return domain.SettlementResult{}, fmt.Errorf("ledger: convert of %s by %s: %w",
				holder, caller, domain.ErrUnauthorized)
		}
	}
	return l.settle(ctx, domain.CapabilityConvert, domain.SettlementConvert, holder, data)
}

// settle runs the shared option-settlement contract: capability gate,
// maturity gate, holding gate, collaborator hand-off, then the zeroing of the
// holding and the issue-volume reduction. The hand-off happens before any
// state change, so a collaborator failure leaves the ledger untouched; the
// state change cannot fail after validation, keeping the whole operation
// all-or-nothing.
func (l *Ledger) settle(ctx context.Context, c domain.Capability, kind domain.SettlementKind, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	settler, configured := l.settlers[c]
	if !l.terms.HasCapability(c) || !configured {
		return domain.SettlementResult{}, fmt.Errorf("ledger: %s not configured for this bond: %w",
			kind, domain.ErrUnsupportedOperation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	if !now.Before(l.terms.MaturityDate) {
		return domain.SettlementResult{}, fmt.Errorf("ledger: %s at %s, matured %s: %w",
			kind, now.Format("2006-01-02"), l.terms.MaturityDate.Format("2006-01-02"),
			domain.ErrMaturityExpired)
	}

	amount := l.holdings[holder]
	if amount == 0 {
		return domain.SettlementResult{}, fmt.Errorf("ledger: %s for %s: %w",
			kind, holder, domain.ErrNoHolding)
	}

	instr := domain.SettlementInstruction{
		ID:       uuid.New().String(),
		Kind:     kind,
		Holder:   holder,
		Amount:   amount,
		IssuedAt: now,
	}
	if err := settler.Settle(ctx, instr); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("ledger: %s hand-off: %w", kind, err)
	}

	delete(l.holdings, holder)
	l.issueVolume -= amount

	ev := l.commit(ctx, domain.Event{
		Kind:   domain.EventTransferred,
		From:   holder,
		To:     domain.ZeroAccount,
		Amount: amount,
		Data:   data,
	}, now)

	return domain.SettlementResult{
		Instruction: instr,
		Seq:         ev.Seq,
		IssueVolume: l.issueVolume,
	}, nil
}
