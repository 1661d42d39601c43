package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrInsufficientInventory means a reserve would push a resource past
	// its capacity. The wrapping message names the failing resource.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrNotFound means a referenced resource row does not exist or is inactive.
	ErrNotFound = errors.New("resource not found")

	// ErrInconsistency means a release would drive the committed count
	// below zero or reverse more than was reserved. It signals a bug
	// upstream and must abort the operation.
	ErrInconsistency = errors.New("ledger inconsistency")
)

type Line struct {
	ResourceID string
	Quantity   int
}

// Repository applies inventory deltas inside a caller-owned transaction.
// Every mutation appends a signed ledger entry keyed by the reservation
// that caused it and adjusts the guarded committed counter in lockstep,
// so the ledger always sums to the committed quantity.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Reserve commits a single delta and returns the new committed total.
func (r *Repository) Reserve(ctx context.Context, tx pgx.Tx, reservationID, resourceID string, quantity int) (int, error) {
	if err := r.ReserveBatch(ctx, tx, reservationID, []Line{{ResourceID: resourceID, Quantity: quantity}}); err != nil {
		return 0, err
	}
	var committed int
	if err := tx.QueryRow(ctx, `SELECT committed FROM resources WHERE id=$1`, resourceID).Scan(&committed); err != nil {
		return 0, fmt.Errorf("read committed: %w", err)
	}
	return committed, nil
}

// Release reverses a single prior reserve.
func (r *Repository) Release(ctx context.Context, tx pgx.Tx, reservationID, resourceID string, quantity int) error {
	return r.ReleaseBatch(ctx, tx, reservationID, []Line{{ResourceID: resourceID, Quantity: quantity}})
}

// ReserveBatch debits all lines or none. Rows are locked in ascending
// resource-id order so concurrent batches cannot deadlock.
func (r *Repository) ReserveBatch(ctx context.Context, tx pgx.Tx, reservationID string, lines []Line) error {
	for _, ln := range sortedMerged(lines) {
		var total, committed int
		err := tx.QueryRow(ctx, `
			SELECT total_quantity, committed
			FROM resources
			WHERE id=$1 AND status='active'
			FOR UPDATE
		`, ln.ResourceID).Scan(&total, &committed)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("resource %s: %w", ln.ResourceID, ErrNotFound)
			}
			return fmt.Errorf("lock resource %s: %w", ln.ResourceID, err)
		}
		if committed+ln.Quantity > total {
			return fmt.Errorf("resource %s: requested %d, available %d: %w",
				ln.ResourceID, ln.Quantity, total-committed, ErrInsufficientInventory)
		}
		if err := r.apply(ctx, tx, reservationID, ln.ResourceID, ln.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseBatch credits all lines or none. Each release must match an
// outstanding reserve for the same reservation; anything else is a bug.
func (r *Repository) ReleaseBatch(ctx context.Context, tx pgx.Tx, reservationID string, lines []Line) error {
	for _, ln := range sortedMerged(lines) {
		var committed int
		err := tx.QueryRow(ctx, `
			SELECT committed
			FROM resources
			WHERE id=$1
			FOR UPDATE
		`, ln.ResourceID).Scan(&committed)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("resource %s: %w", ln.ResourceID, ErrNotFound)
			}
			return fmt.Errorf("lock resource %s: %w", ln.ResourceID, err)
		}
		if committed-ln.Quantity < 0 {
			return fmt.Errorf("resource %s: committed %d, release %d: %w",
				ln.ResourceID, committed, ln.Quantity, ErrInconsistency)
		}

		var outstanding int
		err = tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(delta), 0)
			FROM inventory_ledger
			WHERE reservation_id=$1 AND resource_id=$2
		`, reservationID, ln.ResourceID).Scan(&outstanding)
		if err != nil {
			return fmt.Errorf("sum ledger for %s: %w", ln.ResourceID, err)
		}
		if outstanding < ln.Quantity {
			return fmt.Errorf("resource %s: outstanding %d, release %d: %w",
				ln.ResourceID, outstanding, ln.Quantity, ErrInconsistency)
		}

		if err := r.apply(ctx, tx, reservationID, ln.ResourceID, -ln.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Committed returns the current committed quantity derived from the
// ledger. Exposed for audits; the resources.committed counter must
// always agree with it.
func (r *Repository) Committed(ctx context.Context, tx pgx.Tx, resourceID string) (int, error) {
	var sum int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta), 0)
		FROM inventory_ledger
		WHERE resource_id=$1
	`, resourceID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return sum, nil
}

func (r *Repository) apply(ctx context.Context, tx pgx.Tx, reservationID, resourceID string, delta int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE resources
		SET committed = committed + $2, updated_at = now()
		WHERE id=$1
	`, resourceID, delta); err != nil {
		return fmt.Errorf("adjust committed for %s: %w", resourceID, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_ledger (id, resource_id, reservation_id, delta)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), resourceID, reservationID, delta); err != nil {
		return fmt.Errorf("append ledger entry for %s: %w", resourceID, err)
	}
	return nil
}

// sortedMerged collapses duplicate resource ids and orders lines by id,
// the fixed lock acquisition order.
func sortedMerged(lines []Line) []Line {
	byID := make(map[string]int, len(lines))
	for _, ln := range lines {
		byID[ln.ResourceID] += ln.Quantity
	}
	out := make([]Line, 0, len(byID))
	for id, qty := range byID {
		out = append(out, Line{ResourceID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}
