package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adlift/bidpilot/internal/domain"
)

// OperatorStore implements domain.OperatorStore using PostgreSQL.
type OperatorStore struct {
	pool *pgxpool.Pool
}

// NewOperatorStore creates a new OperatorStore backed by the given pool.
func NewOperatorStore(pool *pgxpool.Pool) *OperatorStore {
	return &OperatorStore{pool: pool}
}

// Get returns a single operator by ID. It returns domain.ErrNotFound when no
// row exists.
func (s *OperatorStore) Get(ctx context.Context, id string) (domain.Operator, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, api_token, updated_at FROM operators WHERE id = $1`, id)

	var op domain.Operator
	err := row.Scan(&op.ID, &op.Name, &op.APIToken, &op.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Operator{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Operator{}, fmt.Errorf("postgres: get operator %s: %w", id, err)
	}
	return op, nil
}

// Upsert inserts or fully replaces an operator row.
func (s *OperatorStore) Upsert(ctx context.Context, op domain.Operator) error {
	const query = `
		INSERT INTO operators (id, name, api_token, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			api_token = EXCLUDED.api_token,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, op.ID, op.Name, op.APIToken)
	if err != nil {
		return fmt.Errorf("postgres: upsert operator %s: %w", op.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OperatorStore = (*OperatorStore)(nil)
