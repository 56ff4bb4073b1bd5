package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Create records a settlement instruction handed to a collaborator.
func (s *SettlementStore) Create(ctx context.Context, instr domain.SettlementInstruction) error {
	const query = `
		INSERT INTO settlements (id, kind, holder, amount, issued_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query,
		instr.ID, string(instr.Kind), instr.Holder.Hex(), int64(instr.Amount), instr.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create settlement %s: %w", instr.ID, err)
	}
	return nil
}

// List returns the most recent settlement instructions, newest first.
func (s *SettlementStore) List(ctx context.Context, limit int) ([]domain.SettlementInstruction, error) {
	const query = `
		SELECT id, kind, holder, amount, issued_at
		FROM settlements ORDER BY issued_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var list []domain.SettlementInstruction
	for rows.Next() {
		var instr domain.SettlementInstruction
		var kind, holder string
		var amount int64
		if err := rows.Scan(&instr.ID, &kind, &holder, &amount, &instr.IssuedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		instr.Kind = domain.SettlementKind(kind)
		instr.Holder = domain.HexToAccount(holder)
		instr.Amount = uint64(amount)
		list = append(list, instr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements rows: %w", err)
	}
	return list, nil
}
