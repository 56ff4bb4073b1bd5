package domain

import (
	"context"
	"time"
)

// BondStore persists the singleton bond terms row.
type BondStore interface {
	Save(ctx context.Context, terms Terms) error
	Get(ctx context.Context) (Terms, error)
}

// HoldingStore persists principal balance snapshots.
type HoldingStore interface {
	Upsert(ctx context.Context, h Holding) error
	All(ctx context.Context) ([]Holding, error)
}

// AllowanceStore persists allowance snapshots. A zero, non-unlimited
// allowance is deleted rather than stored.
type AllowanceStore interface {
	Upsert(ctx context.Context, a Allowance) error
	Delete(ctx context.Context, owner, spender Account) error
	All(ctx context.Context) ([]Allowance, error)
}

// EventJournal persists the append-only event stream.
type EventJournal interface {
	Append(ctx context.Context, ev Event) error
	// List returns events with Seq > since, oldest first, up to limit.
	List(ctx context.Context, since uint64, limit int) ([]Event, error)
	// ListBefore returns events committed strictly before the cutoff, oldest
	// first, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]Event, error)
	// DeleteThrough removes events with Seq <= seq after they were archived.
	DeleteThrough(ctx context.Context, seq uint64) error
	LastSeq(ctx context.Context) (uint64, error)
}

// SettlementStore persists settlement instructions handed to collaborators.
type SettlementStore interface {
	Create(ctx context.Context, instr SettlementInstruction) error
	List(ctx context.Context, limit int) ([]SettlementInstruction, error)
}

// StreamMessage is a single entry read back from the durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus fans committed events out to external observers: pub/sub for live
// subscribers and a durable stream for catch-up reads.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// PrincipalCache serves principal reads without touching the ledger writer.
type PrincipalCache interface {
	Set(ctx context.Context, account Account, amount uint64) error
	Get(ctx context.Context, account Account) (uint64, error)
	Invalidate(ctx context.Context, account Account) error
}

// LockManager provides distributed locking; the apply loop holds the writer
// lock so only one process mutates the ledger at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter bounds request rates per key, used by the API middleware.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
