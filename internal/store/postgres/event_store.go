package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// EventStore implements domain.EventJournal using PostgreSQL. Amounts travel
// as NUMERIC(20,0) text because the unlimited-allowance sentinel does not fit
// a signed BIGINT.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append persists one committed event. Seq is the primary key; replaying an
// already-journaled event fails loudly instead of forking the stream.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO events (seq, kind, from_account, to_account, owner, spender, amount, data, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		int64(ev.Seq), string(ev.Kind), ev.From.Hex(), ev.To.Hex(),
		ev.Owner.Hex(), ev.Spender.Hex(), strconv.FormatUint(ev.Amount, 10),
		ev.Data, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %d: %w", ev.Seq, err)
	}
	return nil
}

// List returns events with seq > since, oldest first, up to limit.
func (s *EventStore) List(ctx context.Context, since uint64, limit int) ([]domain.Event, error) {
	const query = `
		SELECT seq, kind, from_account, to_account, owner, spender, amount::text, data, committed_at
		FROM events WHERE seq > $1 ORDER BY seq LIMIT $2`
	return s.queryEvents(ctx, query, int64(since), limit)
}

// ListBefore returns events committed strictly before the cutoff, oldest
// first, for archival.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	const query = `
		SELECT seq, kind, from_account, to_account, owner, spender, amount::text, data, committed_at
		FROM events WHERE committed_at < $1 ORDER BY seq`
	return s.queryEvents(ctx, query, before)
}

// DeleteThrough removes events with seq <= seq. Called only after the archiver
// confirmed the segment upload.
func (s *EventStore) DeleteThrough(ctx context.Context, seq uint64) error {
	const query = `DELETE FROM events WHERE seq <= $1`
	_, err := s.pool.Exec(ctx, query, int64(seq))
	if err != nil {
		return fmt.Errorf("postgres: delete events through %d: %w", seq, err)
	}
	return nil
}

// LastSeq returns the highest journaled sequence number, zero when the
// journal is empty.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	const query = `SELECT seq FROM events ORDER BY seq DESC LIMIT 1`
	var seq int64
	err := s.pool.QueryRow(ctx, query).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: last event seq: %w", err)
	}
	return uint64(seq), nil
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var list []domain.Event
	for rows.Next() {
		var (
			ev                       domain.Event
			seq                      int64
			kind                     string
			from, to, owner, spender string
			amount                   string
		)
		if err := rows.Scan(&seq, &kind, &from, &to, &owner, &spender, &amount, &ev.Data, &ev.At); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Kind = domain.EventKind(kind)
		ev.From = domain.HexToAccount(from)
		ev.To = domain.HexToAccount(to)
		ev.Owner = domain.HexToAccount(owner)
		ev.Spender = domain.HexToAccount(spender)
		ev.Amount, err = strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse event amount %q: %w", amount, err)
		}
		list = append(list, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return list, nil
}
