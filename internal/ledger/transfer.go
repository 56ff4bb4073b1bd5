package ledger

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// Transfer moves amount from the caller's own holding to another account.
// The from account is the caller by construction. Self-transfer is permitted:
// balances are unchanged but the event is still recorded.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(ctx, from, to, amount, data)
}

// TransferAll moves the caller's entire holding to another account. A zero
// balance fails with ErrInsufficientBalance; there is nothing to move and the
// caller almost certainly expected a holding to exist.
func (l *Ledger) TransferAll(ctx context.Context, from, to domain.Account, data []byte) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.holdings[from]
	if amount == 0 {
		return domain.Event{}, fmt.Errorf("ledger: transfer all from %s: %w",
			from, domain.ErrInsufficientBalance)
	}
	return l.transferLocked(ctx, from, to, amount, data)
}

// TransferFrom moves amount from another owner's holding on the strength of
// an allowance. A numeric ceiling is consumed by the transferred amount;
// approve-all leaves the grant untouched. A caller moving its own holding
// needs no allowance.
func (l *Ledger) TransferFrom(ctx context.Context, caller, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAmount(amount); err != nil {
		return domain.Event{}, err
	}
	// Balance is checked before the allowance is consumed so a rejected
	// transfer leaves the allowance untouched.
	if held := l.holdings[from]; amount > held {
		return domain.Event{}, fmt.Errorf("ledger: transfer %d from %s holding %d: %w",
			amount, from, held, domain.ErrInsufficientBalance)
	}
	if err := l.consumeLocked(from, caller, amount); err != nil {
		return domain.Event{}, err
	}
	return l.transferLocked(ctx, from, to, amount, data)
}

// TransferAllFrom is TransferFrom for the owner's entire holding.
func (l *Ledger) TransferAllFrom(ctx context.Context, caller, from, to domain.Account, data []byte) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.holdings[from]
	if amount == 0 {
		return domain.Event{}, fmt.Errorf("ledger: transfer all from %s: %w",
			from, domain.ErrInsufficientBalance)
	}
	if err := l.consumeLocked(from, caller, amount); err != nil {
		return domain.Event{}, err
	}
	return l.transferLocked(ctx, from, to, amount, data)
}

// transferLocked validates and applies one principal movement. Caller holds
// the write lock; any allowance consumption has already been applied, so a
// failure here must only occur before any state change. checkAmount and the
// balance check precede both mutations, keeping the operation all-or-nothing.
func (l *Ledger) transferLocked(ctx context.Context, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	now := l.now()

	if err := l.checkAmount(amount); err != nil {
		return domain.Event{}, err
	}
	if held := l.holdings[from]; amount > held {
		return domain.Event{}, fmt.Errorf("ledger: transfer %d from %s holding %d: %w",
			amount, from, held, domain.ErrInsufficientBalance)
	}

	if from != to {
		if err := l.debit(from, amount); err != nil {
			return domain.Event{}, err
		}
		l.credit(to, amount)
	}

	ev := l.commit(ctx, domain.Event{
		Kind:   domain.EventTransferred,
		From:   from,
		To:     to,
		Amount: amount,
		Data:   data,
	}, now)
	return ev, nil
}

// consumeLocked spends a delegated-transfer allowance. Caller holds the write
// lock. The owner moving their own holding is always authorized. Under
// approve-all the grant is unlimited and nothing is decremented.
func (l *Ledger) consumeLocked(owner, spender domain.Account, amount uint64) error {
	if owner == spender {
		return nil
	}

	key := pairKey{owner, spender}
	a, ok := l.allowances[key]
	if !ok {
		return fmt.Errorf("ledger: %s has no allowance from %s: %w",
			spender, owner, domain.ErrInsufficientAllowance)
	}
	if a.unlimited {
		return nil
	}
	if amount > a.remaining {
		return fmt.Errorf("ledger: consume %d of allowance %d from %s to %s: %w",
			amount, a.remaining, owner, spender, domain.ErrInsufficientAllowance)
	}

	a.remaining -= amount
	if a.remaining == 0 {
		delete(l.allowances, key)
	} else {
		l.allowances[key] = a
	}
	return nil
}
