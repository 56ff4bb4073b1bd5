package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// In-memory fakes for the store and bus interfaces. They are deliberately
// simple: maps and slices behind a mutex, with an optional injected error.

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func acct(b byte) domain.Account {
	var a domain.Account
	a[19] = b
	return a
}

var (
	_ domain.EventJournal   = (*memJournal)(nil)
	_ domain.HoldingStore   = (*memHoldings)(nil)
	_ domain.AllowanceStore = (*memAllowances)(nil)
	_ domain.EventBus       = (*memBus)(nil)
	_ domain.PrincipalCache = (*memCache)(nil)
)

type memJournal struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (j *memJournal) Append(ctx context.Context, ev domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) List(ctx context.Context, since uint64, limit int) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	var out []domain.Event
	for _, ev := range j.events {
		if ev.Seq > since {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (j *memJournal) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	var out []domain.Event
	for _, ev := range j.events {
		if ev.At.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (j *memJournal) DeleteThrough(ctx context.Context, seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	kept := j.events[:0]
	for _, ev := range j.events {
		if ev.Seq > seq {
			kept = append(kept, ev)
		}
	}
	j.events = kept
	return nil
}

func (j *memJournal) LastSeq(ctx context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return 0, j.err
	}
	if len(j.events) == 0 {
		return 0, nil
	}
	return j.events[len(j.events)-1].Seq, nil
}

type memHoldings struct {
	mu       sync.Mutex
	balances map[domain.Account]uint64
	upserts  []domain.Holding
	err      error
}

func newMemHoldings() *memHoldings {
	return &memHoldings{balances: map[domain.Account]uint64{}}
}

func (h *memHoldings) Upsert(ctx context.Context, hold domain.Holding) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.balances[hold.Account] = hold.Amount
	h.upserts = append(h.upserts, hold)
	return nil
}

func (h *memHoldings) All(ctx context.Context) ([]domain.Holding, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	out := make([]domain.Holding, 0, len(h.balances))
	for a, amt := range h.balances {
		out = append(out, domain.Holding{Account: a, Amount: amt})
	}
	return out, nil
}

type allowanceKey struct {
	owner, spender domain.Account
}

type memAllowances struct {
	mu      sync.Mutex
	grants  map[allowanceKey]domain.Allowance
	deletes []allowanceKey
}

func newMemAllowances() *memAllowances {
	return &memAllowances{grants: map[allowanceKey]domain.Allowance{}}
}

func (m *memAllowances) Upsert(ctx context.Context, a domain.Allowance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[allowanceKey{a.Owner, a.Spender}] = a
	return nil
}

func (m *memAllowances) Delete(ctx context.Context, owner, spender domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := allowanceKey{owner, spender}
	delete(m.grants, key)
	m.deletes = append(m.deletes, key)
	return nil
}

func (m *memAllowances) All(ctx context.Context) ([]domain.Allowance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Allowance, 0, len(m.grants))
	for _, a := range m.grants {
		out = append(out, a)
	}
	return out, nil
}

type memBus struct {
	mu        sync.Mutex
	published [][]byte
	streamed  [][]byte
	err       error
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *memBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memCache struct {
	mu          sync.Mutex
	values      map[domain.Account]uint64
	invalidated []domain.Account
	getErr      error
}

func newMemCache() *memCache {
	return &memCache{values: map[domain.Account]uint64{}}
}

func (c *memCache) Set(ctx context.Context, account domain.Account, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[account] = amount
	return nil
}

func (c *memCache) Get(ctx context.Context, account domain.Account) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, c.getErr
	}
	v, ok := c.values[account]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Invalidate(ctx context.Context, account domain.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, account)
	c.invalidated = append(c.invalidated, account)
	return nil
}

type memSettlements struct {
	mu      sync.Mutex
	created []domain.SettlementInstruction
}

func (s *memSettlements) Create(ctx context.Context, instr domain.SettlementInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, instr)
	return nil
}

func (s *memSettlements) List(ctx context.Context, limit int) ([]domain.SettlementInstruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SettlementInstruction, 0, limit)
	for i := len(s.created) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.created[i])
	}
	return out, nil
}
