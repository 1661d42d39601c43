package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier matches the pgx methods the sequence repository needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository manages producer-side sequences for events.
type Repository struct {
	q Querier
}

// NewRepository creates a new sequence repository.
func NewRepository(q Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	var seq int64
	if err := r.q.QueryRow(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = now()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
