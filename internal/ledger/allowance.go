package ledger

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// Approval returns the committed authorization from owner to spender: the
// numeric ceiling, or domain.UnlimitedAllowance while approve-all is set.
// Unknown pairs report zero; the query never fails.
func (l *Ledger) Approval(owner, spender domain.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.allowances[pairKey{owner, spender}]
	if !ok {
		return 0
	}
	if a.unlimited {
		return domain.UnlimitedAllowance
	}
	return a.remaining
}

// Approve sets the numeric allowance ceiling for a pair, overwriting any
// prior ceiling and clearing an approve-all flag. The two modes are mutually
// exclusive. A zero amount is valid and removes the authorization.
func (l *Ledger) Approve(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error) {
	if amount%l.terms.Denomination != 0 {
		return domain.Event{}, fmt.Errorf("ledger: approve %d is not a multiple of denomination %d: %w",
			amount, l.terms.Denomination, domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	key := pairKey{owner, spender}
	if amount == 0 {
		delete(l.allowances, key)
	} else {
		l.allowances[key] = allowance{remaining: amount}
	}

	ev := l.commit(ctx, domain.Event{
		Kind:    domain.EventApproved,
		Owner:   owner,
		Spender: spender,
		Amount:  amount,
	}, now)
	return ev, nil
}

// ApproveAll grants the spender unlimited authority over the owner's holding,
// superseding any numeric ceiling. The Approved event carries the unlimited
// sentinel.
func (l *Ledger) ApproveAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	l.allowances[pairKey{owner, spender}] = allowance{unlimited: true}

	ev := l.commit(ctx, domain.Event{
		Kind:    domain.EventApproved,
		Owner:   owner,
		Spender: spender,
		Amount:  domain.UnlimitedAllowance,
	}, now)
	return ev, nil
}

// DecreaseAllowance reduces the numeric ceiling by amount. While approve-all
// is set there is no ceiling to decrement, so the call fails with
// ErrInsufficientAllowance; revoking the unlimited grant goes through
// DecreaseAllowanceForAll instead.
func (l *Ledger) DecreaseAllowance(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error) {
	if err := l.checkAmount(amount); err != nil {
		return domain.Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	key := pairKey{owner, spender}
	a, ok := l.allowances[key]
	if !ok || a.unlimited || amount > a.remaining {
		return domain.Event{}, fmt.Errorf("ledger: decrease allowance %d from %s to %s: %w",
			amount, owner, spender, domain.ErrInsufficientAllowance)
	}

	a.remaining -= amount
	if a.remaining == 0 {
		delete(l.allowances, key)
	} else {
		l.allowances[key] = a
	}

	ev := l.commit(ctx, domain.Event{
		Kind:    domain.EventAllowanceDecreased,
		Owner:   owner,
		Spender: spender,
		Amount:  amount,
	}, now)
	return ev, nil
}

// DecreaseAllowanceForAll fully revokes the spender's authorization: it
// clears the approve-all flag and zeroes any numeric ceiling. The call is
// idempotent; revoking an already-empty authorization succeeds and records
// the event with a zero amount. The event amount is the authorization that
// was actually removed, the unlimited sentinel when approve-all was set.
func (l *Ledger) DecreaseAllowanceForAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	key := pairKey{owner, spender}
	var revoked uint64
	if a, ok := l.allowances[key]; ok {
		if a.unlimited {
			revoked = domain.UnlimitedAllowance
		} else {
			revoked = a.remaining
		}
		delete(l.allowances, key)
	}

	ev := l.commit(ctx, domain.Event{
		Kind:    domain.EventAllowanceDecreased,
		Owner:   owner,
		Spender: spender,
		Amount:  revoked,
	}, now)
	return ev, nil
}
