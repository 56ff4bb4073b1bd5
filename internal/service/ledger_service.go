package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
	"github.com/alanyoungcy/bondledgerd/internal/ledger"
)

// BondInfo is the bond metadata view served by the API: the immutable terms
// plus the current outstanding issue volume.
type BondInfo struct {
	domain.Terms
	OutstandingVolume uint64 `json:"outstanding_volume"`
	LastSeq           uint64 `json:"last_seq"`
}

// LedgerService coordinates the in-memory ledger with the snapshot stores and
// the principal cache. Mutations run under one service mutex so snapshot
// writes land in commit order; the ledger's own lock already serializes the
// operations themselves.
type LedgerService struct {
	mu sync.Mutex

	ledger      *ledger.Ledger
	holdings    domain.HoldingStore
	allowances  domain.AllowanceStore
	journal     domain.EventJournal
	settlements domain.SettlementStore
	cache       domain.PrincipalCache
	logger      *slog.Logger
}

// NewLedgerService creates a LedgerService. The snapshot stores and cache may
// be nil for ephemeral setups; the in-memory ledger remains authoritative.
func NewLedgerService(
	l *ledger.Ledger,
	holdings domain.HoldingStore,
	allowances domain.AllowanceStore,
	journal domain.EventJournal,
	settlements domain.SettlementStore,
	cache domain.PrincipalCache,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		ledger:      l,
		holdings:    holdings,
		allowances:  allowances,
		journal:     journal,
		settlements: settlements,
		cache:       cache,
		logger:      logger.With(slog.String("component", "ledger_service")),
	}
}

// Bond returns the bond metadata view.
func (s *LedgerService) Bond(ctx context.Context) BondInfo {
	return BondInfo{
		Terms:             s.ledger.Terms(),
		OutstandingVolume: s.ledger.IssueVolume(),
		LastSeq:           s.ledger.Seq(),
	}
}

// Principal returns an account's balance, preferring the cache and falling
// back to the ledger on a miss.
func (s *LedgerService) Principal(ctx context.Context, account domain.Account) uint64 {
	if s.cache != nil {
		if amount, err := s.cache.Get(ctx, account); err == nil {
			return amount
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "principal cache read failed",
				slog.String("account", account.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	amount := s.ledger.PrincipalOf(account)
	if s.cache != nil {
		if err := s.cache.Set(ctx, account, amount); err != nil {
			s.logger.WarnContext(ctx, "principal cache fill failed",
				slog.String("account", account.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return amount
}

// Approval returns the committed authorization from owner to spender.
func (s *LedgerService) Approval(ctx context.Context, owner, spender domain.Account) uint64 {
	return s.ledger.Approval(owner, spender)
}

// Events returns journaled events with seq > since, oldest first.
func (s *LedgerService) Events(ctx context.Context, since uint64, limit int) ([]domain.Event, error) {
	if s.journal == nil {
		return nil, nil
	}
	evs, err := s.journal.List(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list events: %w", err)
	}
	return evs, nil
}

// Settlements returns the most recent settlement instructions.
func (s *LedgerService) Settlements(ctx context.Context, limit int) ([]domain.SettlementInstruction, error) {
	if s.settlements == nil {
		return nil, nil
	}
	list, err := s.settlements.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list settlements: %w", err)
	}
	return list, nil
}

// Transfer moves amount from the caller's holding to another account.
func (s *LedgerService) Transfer(ctx context.Context, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.Transfer(ctx, from, to, amount, data)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotHoldings(ctx, from, to)
	return ev, nil
}

// TransferAll moves the caller's entire holding to another account.
func (s *LedgerService) TransferAll(ctx context.Context, from, to domain.Account, data []byte) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.TransferAll(ctx, from, to, data)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotHoldings(ctx, from, to)
	return ev, nil
}

// TransferFrom moves amount out of another owner's holding against an
// allowance.
func (s *LedgerService) TransferFrom(ctx context.Context, caller, from, to domain.Account, amount uint64, data []byte) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.TransferFrom(ctx, caller, from, to, amount, data)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotHoldings(ctx, from, to)
	s.snapshotAllowance(ctx, from, caller)
	return ev, nil
}

// TransferAllFrom moves the owner's entire holding against an allowance.
func (s *LedgerService) TransferAllFrom(ctx context.Context, caller, from, to domain.Account, data []byte) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.TransferAllFrom(ctx, caller, from, to, data)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotHoldings(ctx, from, to)
	s.snapshotAllowance(ctx, from, caller)
	return ev, nil
}

// Approve sets the numeric allowance ceiling for a pair.
func (s *LedgerService) Approve(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.Approve(ctx, owner, spender, amount)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotAllowance(ctx, owner, spender)
	return ev, nil
}

// ApproveAll grants the spender unlimited authority.
func (s *LedgerService) ApproveAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.ApproveAll(ctx, owner, spender)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotAllowance(ctx, owner, spender)
	return ev, nil
}

// DecreaseAllowance reduces a numeric ceiling.
func (s *LedgerService) DecreaseAllowance(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.DecreaseAllowance(ctx, owner, spender, amount)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotAllowance(ctx, owner, spender)
	return ev, nil
}

// DecreaseAllowanceForAll fully revokes an authorization.
func (s *LedgerService) DecreaseAllowanceForAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.ledger.DecreaseAllowanceForAll(ctx, owner, spender)
	if err != nil {
		return domain.Event{}, err
	}
	s.snapshotAllowance(ctx, owner, spender)
	return ev, nil
}

// Call settles the issuer's call option against one holder.
func (s *LedgerService) Call(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.ledger.Call(ctx, caller, holder, data)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	s.snapshotHoldings(ctx, holder)
	return res, nil
}

// Put settles the caller's put option.
func (s *LedgerService) Put(ctx context.Context, caller domain.Account, data []byte) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.ledger.Put(ctx, caller, data)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	s.snapshotHoldings(ctx, caller)
	return res, nil
}

// Convert settles the conversion option for one holder.
func (s *LedgerService) Convert(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.ledger.Convert(ctx, caller, holder, data)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	s.snapshotHoldings(ctx, holder)
	return res, nil
}

// SnapshotAll persists the full current ledger state: every holding and every
// live allowance. Used at issuance so the first boot's state survives a crash.
func (s *LedgerService) SnapshotAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holdings != nil {
		for _, h := range s.ledger.Holdings() {
			if err := s.holdings.Upsert(ctx, h); err != nil {
				return fmt.Errorf("ledger_service: snapshot holding %s: %w", h.Account, err)
			}
		}
	}
	if s.allowances != nil {
		for _, a := range s.ledger.Allowances() {
			if err := s.allowances.Upsert(ctx, a); err != nil {
				return fmt.Errorf("ledger_service: snapshot allowance %s->%s: %w", a.Owner, a.Spender, err)
			}
		}
	}
	return nil
}

// snapshotHoldings writes the post-commit balances of the touched accounts.
// Failures are logged; the in-memory ledger already committed.
func (s *LedgerService) snapshotHoldings(ctx context.Context, accounts ...domain.Account) {
	for _, acct := range accounts {
		if acct == domain.ZeroAccount {
			continue
		}
		amount := s.ledger.PrincipalOf(acct)
		if s.holdings != nil {
			if err := s.holdings.Upsert(ctx, domain.Holding{Account: acct, Amount: amount}); err != nil {
				s.logger.ErrorContext(ctx, "holding snapshot failed",
					slog.String("account", acct.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, acct, amount); err != nil {
				s.logger.WarnContext(ctx, "principal cache refresh failed",
					slog.String("account", acct.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// snapshotAllowance writes the post-commit authorization of one pair, deleting
// the row when nothing remains.
func (s *LedgerService) snapshotAllowance(ctx context.Context, owner, spender domain.Account) {
	if s.allowances == nil || owner == spender {
		return
	}

	v := s.ledger.Approval(owner, spender)
	var err error
	switch {
	case v == 0:
		err = s.allowances.Delete(ctx, owner, spender)
	case v == domain.UnlimitedAllowance:
		err = s.allowances.Upsert(ctx, domain.Allowance{Owner: owner, Spender: spender, Unlimited: true})
	default:
		err = s.allowances.Upsert(ctx, domain.Allowance{Owner: owner, Spender: spender, Remaining: v})
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "allowance snapshot failed",
			slog.String("owner", owner.Hex()),
			slog.String("spender", spender.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
