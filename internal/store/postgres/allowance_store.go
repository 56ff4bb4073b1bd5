package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// AllowanceStore implements domain.AllowanceStore using PostgreSQL.
type AllowanceStore struct {
	pool *pgxpool.Pool
}

// NewAllowanceStore creates a new AllowanceStore.
func NewAllowanceStore(pool *pgxpool.Pool) *AllowanceStore {
	return &AllowanceStore{pool: pool}
}

// Upsert writes one owner/spender authorization snapshot.
func (s *AllowanceStore) Upsert(ctx context.Context, a domain.Allowance) error {
	const query = `
		INSERT INTO allowances (owner, spender, remaining, unlimited, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner, spender) DO UPDATE SET
			remaining = EXCLUDED.remaining, unlimited = EXCLUDED.unlimited,
			updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query,
		a.Owner.Hex(), a.Spender.Hex(), int64(a.Remaining), a.Unlimited,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert allowance %s->%s: %w", a.Owner, a.Spender, err)
	}
	return nil
}

// Delete removes a revoked authorization. Deleting an absent row is not an
// error; revocation is idempotent.
func (s *AllowanceStore) Delete(ctx context.Context, owner, spender domain.Account) error {
	const query = `DELETE FROM allowances WHERE owner = $1 AND spender = $2`
	_, err := s.pool.Exec(ctx, query, owner.Hex(), spender.Hex())
	if err != nil {
		return fmt.Errorf("postgres: delete allowance %s->%s: %w", owner, spender, err)
	}
	return nil
}

// All returns every live authorization snapshot.
func (s *AllowanceStore) All(ctx context.Context) ([]domain.Allowance, error) {
	const query = `SELECT owner, spender, remaining, unlimited FROM allowances ORDER BY owner, spender`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list allowances: %w", err)
	}
	defer rows.Close()

	var list []domain.Allowance
	for rows.Next() {
		var owner, spender string
		var remaining int64
		var unlimited bool
		if err := rows.Scan(&owner, &spender, &remaining, &unlimited); err != nil {
			return nil, fmt.Errorf("postgres: scan allowance: %w", err)
		}
		list = append(list, domain.Allowance{
			Owner:     domain.HexToAccount(owner),
			Spender:   domain.HexToAccount(spender),
			Remaining: uint64(remaining),
			Unlimited: unlimited,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list allowances rows: %w", err)
	}
	return list, nil
}
