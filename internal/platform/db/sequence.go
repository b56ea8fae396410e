package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequencer hands out monotonically increasing numbers per scope.
type Sequencer interface {
	Next(ctx context.Context, scope string) (int, error)
}

// PGSequencer advances rows of id_sequences. When called inside WithTx the
// row lock is held until commit, so concurrent creators in the same scope
// queue behind each other and never observe the same value.
type PGSequencer struct {
	pool *pgxpool.Pool
}

func NewSequencer(pool *pgxpool.Pool) *PGSequencer {
	return &PGSequencer{pool: pool}
}

func (s *PGSequencer) Next(ctx context.Context, scope string) (int, error) {
	var v int
	err := Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO id_sequences (scope, value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = id_sequences.value + 1
		RETURNING value`, scope).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", scope, err)
	}
	return v, nil
}
