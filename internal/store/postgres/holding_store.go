package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// HoldingStore implements domain.HoldingStore using PostgreSQL.
type HoldingStore struct {
	pool *pgxpool.Pool
}

// NewHoldingStore creates a new HoldingStore.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Upsert writes one account's principal snapshot. Zero balances are kept as
// rows; a drained holding is still a holding.
func (s *HoldingStore) Upsert(ctx context.Context, h domain.Holding) error {
	const query = `
		INSERT INTO holdings (account, amount, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			amount = EXCLUDED.amount, updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query, h.Account.Hex(), int64(h.Amount))
	if err != nil {
		return fmt.Errorf("postgres: upsert holding %s: %w", h.Account, err)
	}
	return nil
}

// All returns every holding snapshot, largest first.
func (s *HoldingStore) All(ctx context.Context) ([]domain.Holding, error) {
	const query = `SELECT account, amount FROM holdings ORDER BY amount DESC, account`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings: %w", err)
	}
	defer rows.Close()

	var list []domain.Holding
	for rows.Next() {
		var account string
		var amount int64
		if err := rows.Scan(&account, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		list = append(list, domain.Holding{
			Account: domain.HexToAccount(account),
			Amount:  uint64(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list holdings rows: %w", err)
	}
	return list, nil
}
