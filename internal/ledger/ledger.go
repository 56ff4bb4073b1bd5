// Package ledger implements the bond ledger state machine: principal
// holdings, allowances, the transfer engine, and the embedded-option
// lifecycle. All mutations are serialized as whole operations under one
// writer lock, so every observer sees a committed state and never a
// partially-applied one. Events are sequenced in commit order and handed to
// the configured sink inside the same critical section that commits them.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// Sink receives every committed event, in sequence order, exactly once.
// Implementations must not call back into the ledger.
type Sink interface {
	Committed(ctx context.Context, ev domain.Event)
}

type pairKey struct {
	owner   domain.Account
	spender domain.Account
}

type allowance struct {
	remaining uint64
	unlimited bool
}

// Ledger is the authoritative in-memory bond ledger. Create one per bond
// instance with New (issuance) or Restore (snapshot boot).
type Ledger struct {
	mu sync.RWMutex

	terms       domain.Terms
	issueVolume uint64
	holdings    map[domain.Account]uint64
	allowances  map[pairKey]allowance
	seq         uint64

	now        func() time.Time
	sink       Sink
	settlers   map[domain.Capability]domain.Settler
	issuerAuth domain.IssuerAuthorizer
}

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithClock overrides the canonical clock. Each operation reads the clock
// exactly once, so maturity comparisons within one operation are consistent.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSink attaches the committed-event sink.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithSettler attaches the external settlement collaborator for one embedded
// option capability.
func WithSettler(c domain.Capability, s domain.Settler) Option {
	return func(l *Ledger) { l.settlers[c] = s }
}

// WithIssuerAuthorizer attaches the external identity collaborator used for
// issuer-only operations. Without one, the caller address is compared against
// the issuer address in the bond terms.
func WithIssuerAuthorizer(a domain.IssuerAuthorizer) Option {
	return func(l *Ledger) { l.issuerAuth = a }
}

// New issues the bond: it validates the terms, checks that the initial
// distribution is a multiple-of-denomination partition of the issue volume,
// and returns a ledger holding that distribution at sequence zero.
func New(terms domain.Terms, distribution []domain.Holding, opts ...Option) (*Ledger, error) {
	if err := validateTerms(terms); err != nil {
		return nil, err
	}

	holdings := make(map[domain.Account]uint64, len(distribution))
	var total uint64
	for _, h := range distribution {
		if h.Amount == 0 || h.Amount%terms.Denomination != 0 {
			return nil, fmt.Errorf("ledger: distribution for %s is %d: %w",
				h.Account, h.Amount, domain.ErrInvalidAmount)
		}
		if _, dup := holdings[h.Account]; dup {
			return nil, fmt.Errorf("ledger: duplicate distribution account %s: %w",
				h.Account, domain.ErrAlreadyExists)
		}
		holdings[h.Account] = h.Amount
		total += h.Amount
	}
	if total != terms.IssueVolume {
		return nil, fmt.Errorf("ledger: distribution sums to %d, issue volume is %d: %w",
			total, terms.IssueVolume, domain.ErrInvalidAmount)
	}

	l := newLedger(terms, opts)
	l.issueVolume = terms.IssueVolume
	l.holdings = holdings
	return l, nil
}

// Restore rebuilds a ledger from persisted state: the holdings and allowance
// snapshots, the current issue volume, and the last committed sequence
// number. The conservation and denomination invariants are re-checked so a
// corrupt snapshot is rejected at boot rather than discovered mid-flight.
func Restore(terms domain.Terms, issueVolume uint64, holdings []domain.Holding, allowances []domain.Allowance, seq uint64, opts ...Option) (*Ledger, error) {
	if err := validateTerms(terms); err != nil {
		return nil, err
	}

	hm := make(map[domain.Account]uint64, len(holdings))
	var total uint64
	for _, h := range holdings {
		if h.Amount == 0 {
			continue
		}
		if h.Amount%terms.Denomination != 0 {
			return nil, fmt.Errorf("ledger: snapshot holding for %s is %d: %w",
				h.Account, h.Amount, domain.ErrInvalidAmount)
		}
		hm[h.Account] = h.Amount
		total += h.Amount
	}
	if total != issueVolume {
		return nil, fmt.Errorf("ledger: snapshot holdings sum to %d, issue volume is %d: %w",
			total, issueVolume, domain.ErrInvalidAmount)
	}

	l := newLedger(terms, opts)
	l.issueVolume = issueVolume
	l.holdings = hm
	l.seq = seq
	for _, a := range allowances {
		if !a.Unlimited && a.Remaining == 0 {
			continue
		}
		l.allowances[pairKey{a.Owner, a.Spender}] = allowance{
			remaining: a.Remaining,
			unlimited: a.Unlimited,
		}
	}
	return l, nil
}

func newLedger(terms domain.Terms, opts []Option) *Ledger {
	l := &Ledger{
		terms:      terms,
		holdings:   map[domain.Account]uint64{},
		allowances: map[pairKey]allowance{},
		now:        func() time.Time { return time.Now().UTC() },
		settlers:   map[domain.Capability]domain.Settler{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func validateTerms(t domain.Terms) error {
	if t.ISIN == "" {
		return fmt.Errorf("ledger: terms: isin must not be empty")
	}
	if t.Denomination == 0 {
		return fmt.Errorf("ledger: terms: denomination must be positive")
	}
	if t.IssueVolume == 0 || t.IssueVolume%t.Denomination != 0 {
		return fmt.Errorf("ledger: terms: issue volume %d is not a positive multiple of denomination %d",
			t.IssueVolume, t.Denomination)
	}
	if !t.MaturityDate.After(t.IssueDate) {
		return fmt.Errorf("ledger: terms: maturity date must be after issue date")
	}
	for _, c := range t.Capabilities {
		switch c {
		case domain.CapabilityCall, domain.CapabilityPut, domain.CapabilityConvert:
		default:
			return fmt.Errorf("ledger: terms: unknown capability %q", c)
		}
	}
	return nil
}

// Terms returns the immutable bond terms.
func (l *Ledger) Terms() domain.Terms {
	return l.terms
}

// PrincipalOf returns the committed principal balance of an account. Unknown
// accounts hold zero; the query never fails.
func (l *Ledger) PrincipalOf(account domain.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holdings[account]
}

// IssueVolume returns the current total outstanding debt. It equals the sum
// of all principal balances and only decreases through option settlement.
func (l *Ledger) IssueVolume() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issueVolume
}

// Seq returns the sequence number of the last committed event.
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Holdings returns a copy of all non-zero principal balances.
func (l *Ledger) Holdings() []domain.Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Holding, 0, len(l.holdings))
	for acct, amt := range l.holdings {
		out = append(out, domain.Holding{Account: acct, Amount: amt})
	}
	return out
}

// Allowances returns a copy of all live allowance records.
func (l *Ledger) Allowances() []domain.Allowance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Allowance, 0, len(l.allowances))
	for k, a := range l.allowances {
		out = append(out, domain.Allowance{
			Owner:     k.owner,
			Spender:   k.spender,
			Remaining: a.remaining,
			Unlimited: a.unlimited,
		})
	}
	return out
}

// checkAmount validates that amount is a positive multiple of the
// denomination.
func (l *Ledger) checkAmount(amount uint64) error {
	if amount == 0 || amount%l.terms.Denomination != 0 {
		return fmt.Errorf("ledger: amount %d is not a positive multiple of denomination %d: %w",
			amount, l.terms.Denomination, domain.ErrInvalidAmount)
	}
	return nil
}

// debit removes amount from an account. Caller holds the write lock and has
// validated the amount. A balance that reaches zero is removed from the map;
// zero is a valid holding state, not account deletion.
func (l *Ledger) debit(account domain.Account, amount uint64) error {
	held := l.holdings[account]
	if amount > held {
		return fmt.Errorf("ledger: debit %d from %s holding %d: %w",
			amount, account, held, domain.ErrInsufficientBalance)
	}
	if held == amount {
		delete(l.holdings, account)
	} else {
		l.holdings[account] = held - amount
	}
	return nil
}

// credit adds amount to an account. Caller holds the write lock and has
// validated the amount.
func (l *Ledger) credit(account domain.Account, amount uint64) {
	l.holdings[account] += amount
}

// commit assigns the next sequence number, stamps the event, and hands it to
// the sink. Caller holds the write lock and has already applied the state
// change, so sink order always matches commit order.
func (l *Ledger) commit(ctx context.Context, ev domain.Event, at time.Time) domain.Event {
	l.seq++
	ev.Seq = l.seq
	ev.At = at
	if l.sink != nil {
		l.sink.Committed(ctx, ev)
	}
	return ev
}

// isIssuer resolves issuer identity through the external authorizer when one
// is attached, falling back to the issuer address in the terms.
func (l *Ledger) isIssuer(ctx context.Context, caller domain.Account) (bool, error) {
	if l.issuerAuth != nil {
		return l.issuerAuth.IsIssuer(ctx, caller)
	}
	return caller == l.terms.Issuer, nil
}
