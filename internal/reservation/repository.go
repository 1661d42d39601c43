package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/ledger"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// InventoryLedger applies inventory deltas inside the repository's transaction.
type InventoryLedger interface {
	ReserveBatch(ctx context.Context, tx pgx.Tx, reservationID string, lines []ledger.Line) error
	ReleaseBatch(ctx context.Context, tx pgx.Tx, reservationID string, lines []ledger.Line) error
}

type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	FindByID(ctx context.Context, id string) (*Reservation, error)
	ListForSpace(ctx context.Context, spaceID string, from, to time.Time) ([]Reservation, error)
	UpdateStatus(ctx context.Context, id string, target Status) (*Reservation, error)
	UpdateWindow(ctx context.Context, id string, start, end *time.Time) (*Reservation, error)
	Cancel(ctx context.Context, id string) (*Reservation, error)
}

const defaultLockTimeout = 3 * time.Second

// PostgresRepository persists reservations. Every state-changing method is
// one transaction: the space row is locked first, then resource rows in
// ascending id order (inside the ledger), so concurrent bookings serialize
// instead of double-committing. Lock waits are bounded; timeouts surface
// as ErrContention with nothing committed.
type PostgresRepository struct {
	pool        DBPool
	ledger      InventoryLedger
	lockTimeout time.Duration
}

func NewPostgresRepository(pool DBPool, led InventoryLedger) *PostgresRepository {
	return &PostgresRepository{
		pool:        pool,
		ledger:      led,
		lockTimeout: defaultLockTimeout,
	}
}

func (r *PostgresRepository) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	// Parameters are not allowed in SET LOCAL; the value comes from our own config.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}

func (r *PostgresRepository) Create(ctx context.Context, res *Reservation) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return wrapContention(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var spaceStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM spaces WHERE id=$1 FOR UPDATE`, res.SpaceID).Scan(&spaceStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("space %s: %w", res.SpaceID, ErrNotFound)
		}
		return wrapContention(fmt.Errorf("lock space: %w", err))
	}
	if spaceStatus != "active" {
		return fmt.Errorf("space %s: %w", res.SpaceID, ErrInactive)
	}

	conflict, err := hasConflict(ctx, tx, res.SpaceID, res.StartDate, res.EndDate, "")
	if err != nil {
		return wrapContention(err)
	}
	if conflict {
		return ErrSlotUnavailable
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO reservations (id, client_id, space_id, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, res.ID, res.ClientID, res.SpaceID, res.StartDate, res.EndDate, StatusOpen).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return wrapContention(fmt.Errorf("insert reservation: %w", err))
	}
	res.Status = StatusOpen

	for _, ln := range res.Resources {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservation_resources (reservation_id, resource_id, quantity)
			VALUES ($1, $2, $3)
		`, res.ID, ln.ResourceID, ln.Quantity); err != nil {
			return wrapContention(fmt.Errorf("insert reservation line: %w", err))
		}
	}

	if err := r.ledger.ReserveBatch(ctx, tx, res.ID, toLedgerLines(res.Resources)); err != nil {
		return wrapContention(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapContention(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, selectReservation+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select reservation: %w", err)
	}
	if err := r.loadLines(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ListForSpace returns reservations for a space, optionally narrowed to
// those overlapping [from, to). Zero times leave the bound open.
func (r *PostgresRepository) ListForSpace(ctx context.Context, spaceID string, from, to time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, selectReservation+`
		WHERE space_id=$1
		  AND ($2::timestamptz IS NULL OR end_date > $2)
		  AND ($3::timestamptz IS NULL OR start_date < $3)
		ORDER BY start_date
	`, spaceID, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range out {
		if err := r.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, target Status) (*Reservation, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, wrapContention(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := r.lockReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateStatusUpdate(res.Status, target); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE reservations
		SET status=$2,
		    updated_at=now(),
		    closed_at=CASE WHEN $2 IN ('DELIVERED', 'CANCELED') THEN now() ELSE closed_at END
		WHERE id=$1
		RETURNING updated_at, closed_at
	`, id, target).Scan(&res.UpdatedAt, &res.ClosedAt)
	if err != nil {
		return nil, wrapContention(fmt.Errorf("update status: %w", err))
	}
	res.Status = target

	if err := r.loadLinesTx(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrapContention(fmt.Errorf("commit: %w", err))
	}
	return res, nil
}

func (r *PostgresRepository) UpdateWindow(ctx context.Context, id string, start, end *time.Time) (*Reservation, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, wrapContention(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Peek at the space first so locks are always taken space-first,
	// matching Create.
	var spaceID string
	err = tx.QueryRow(ctx, `SELECT space_id FROM reservations WHERE id=$1`, id).Scan(&spaceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
		}
		return nil, wrapContention(fmt.Errorf("select reservation: %w", err))
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM spaces WHERE id=$1 FOR UPDATE`, spaceID); err != nil {
		return nil, wrapContention(fmt.Errorf("lock space: %w", err))
	}

	res, err := r.lockReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateWindowEdit(res.Status); err != nil {
		return nil, err
	}

	newStart, newEnd := res.StartDate, res.EndDate
	if start != nil {
		newStart = *start
	}
	if end != nil {
		newEnd = *end
	}
	if !newStart.Before(newEnd) {
		return nil, fmt.Errorf("%w: startDate must be before endDate", ErrInvalidInput)
	}

	conflict, err := hasConflict(ctx, tx, res.SpaceID, newStart, newEnd, id)
	if err != nil {
		return nil, wrapContention(err)
	}
	if conflict {
		return nil, ErrSlotUnavailable
	}

	err = tx.QueryRow(ctx, `
		UPDATE reservations
		SET start_date=$2, end_date=$3, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`, id, newStart, newEnd).Scan(&res.UpdatedAt)
	if err != nil {
		return nil, wrapContention(fmt.Errorf("update window: %w", err))
	}
	res.StartDate, res.EndDate = newStart, newEnd

	if err := r.loadLinesTx(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrapContention(fmt.Errorf("commit: %w", err))
	}
	return res, nil
}

// Cancel flips an open reservation to CANCELED and releases its inventory
// in the same transaction. Either both happen or neither does.
func (r *PostgresRepository) Cancel(ctx context.Context, id string) (*Reservation, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, wrapContention(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := r.lockReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateCancel(res.Status); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE reservations
		SET status=$2, updated_at=now(), closed_at=now()
		WHERE id=$1
		RETURNING updated_at, closed_at
	`, id, StatusCanceled).Scan(&res.UpdatedAt, &res.ClosedAt)
	if err != nil {
		return nil, wrapContention(fmt.Errorf("update status: %w", err))
	}
	res.Status = StatusCanceled

	if err := r.loadLinesTx(ctx, tx, res); err != nil {
		return nil, err
	}

	if err := r.ledger.ReleaseBatch(ctx, tx, id, toLedgerLines(res.Resources)); err != nil {
		return nil, wrapContention(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapContention(fmt.Errorf("commit: %w", err))
	}
	return res, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// hasConflict reports whether any reservation in an occupying status
// overlaps [start, end) on the space. Two half-open intervals overlap iff
// each starts before the other ends; a booking ending at T never blocks
// one starting at T. Must run inside the same transaction as the write
// that relies on it.
func hasConflict(ctx context.Context, q rowQuerier, spaceID string, start, end time.Time, excludeID string) (bool, error) {
	var conflict bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE space_id=$1
			  AND status IN ('OPEN', 'APPROVED')
			  AND ($4 = '' OR id <> $4)
			  AND start_date < $3
			  AND end_date > $2
		)
	`, spaceID, start, end, excludeID).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("conflict check: %w", err)
	}
	return conflict, nil
}

const selectReservation = `
	SELECT id, client_id, space_id, start_date, end_date, status, created_at, updated_at, closed_at
	FROM reservations`

type scannable interface {
	Scan(dest ...any) error
}

func scanReservation(row scannable) (*Reservation, error) {
	var res Reservation
	if err := row.Scan(
		&res.ID, &res.ClientID, &res.SpaceID,
		&res.StartDate, &res.EndDate, &res.Status,
		&res.CreatedAt, &res.UpdatedAt, &res.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *PostgresRepository) lockReservation(ctx context.Context, tx pgx.Tx, id string) (*Reservation, error) {
	res, err := scanReservation(tx.QueryRow(ctx, selectReservation+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
		}
		return nil, wrapContention(fmt.Errorf("lock reservation: %w", err))
	}
	return res, nil
}

func (r *PostgresRepository) loadLines(ctx context.Context, res *Reservation) error {
	rows, err := r.pool.Query(ctx, `
		SELECT resource_id, quantity
		FROM reservation_resources
		WHERE reservation_id=$1
		ORDER BY resource_id
	`, res.ID)
	if err != nil {
		return fmt.Errorf("select reservation lines: %w", err)
	}
	defer rows.Close()
	return scanLines(rows, res)
}

func (r *PostgresRepository) loadLinesTx(ctx context.Context, tx pgx.Tx, res *Reservation) error {
	rows, err := tx.Query(ctx, `
		SELECT resource_id, quantity
		FROM reservation_resources
		WHERE reservation_id=$1
		ORDER BY resource_id
	`, res.ID)
	if err != nil {
		return fmt.Errorf("select reservation lines: %w", err)
	}
	defer rows.Close()
	return scanLines(rows, res)
}

func scanLines(rows pgx.Rows, res *Reservation) error {
	res.Resources = nil
	for rows.Next() {
		var ln ResourceLine
		if err := rows.Scan(&ln.ResourceID, &ln.Quantity); err != nil {
			return fmt.Errorf("scan reservation line: %w", err)
		}
		res.Resources = append(res.Resources, ln)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func toLedgerLines(lines []ResourceLine) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for _, ln := range lines {
		out = append(out, ledger.Line{ResourceID: ln.ResourceID, Quantity: ln.Quantity})
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// wrapContention converts lock-timeout and serialization failures into the
// retryable ErrContention; everything else passes through unchanged.
func wrapContention(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01": // lock_not_available, serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrContention, err)
		}
	}
	return err
}
