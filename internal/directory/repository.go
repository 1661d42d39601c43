package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/reservation"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrActiveReservations blocks deactivating a client that still has
	// open or approved bookings.
	ErrActiveReservations = errors.New("client has active reservations")

	// ErrCapacityBelowCommitted blocks shrinking a resource below what is
	// already committed to bookings.
	ErrCapacityBelowCommitted = errors.New("total quantity below committed")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresRepository is the master-data store the booking engine consults.
type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) UpsertClient(ctx context.Context, id, name string) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, status='active', updated_at=now()
		RETURNING id, name, status, created_at, updated_at
	`, id, name).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Client{}, fmt.Errorf("upsert client: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) UpsertSpace(ctx context.Context, id, name string) (Space, error) {
	var s Space
	err := r.pool.QueryRow(ctx, `
		INSERT INTO spaces (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, status='active', updated_at=now()
		RETURNING id, name, status, created_at, updated_at
	`, id, name).Scan(&s.ID, &s.Name, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Space{}, fmt.Errorf("upsert space: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpsertResource(ctx context.Context, id, name string, totalQuantity int) (Resource, error) {
	var res Resource
	err := r.pool.QueryRow(ctx, `
		INSERT INTO resources (id, name, total_quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, total_quantity=EXCLUDED.total_quantity, status='active', updated_at=now()
		RETURNING id, name, total_quantity, committed, status, created_at, updated_at
	`, id, name, totalQuantity).Scan(&res.ID, &res.Name, &res.TotalQuantity, &res.Committed, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" { // check_violation: committed <= total_quantity
			return Resource{}, fmt.Errorf("resource %s: %w", id, ErrCapacityBelowCommitted)
		}
		return Resource{}, fmt.Errorf("upsert resource: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) GetResource(ctx context.Context, id string) (Resource, error) {
	var res Resource
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, total_quantity, committed, status, created_at, updated_at
		FROM resources WHERE id=$1
	`, id).Scan(&res.ID, &res.Name, &res.TotalQuantity, &res.Committed, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
		}
		return Resource{}, fmt.Errorf("select resource: %w", err)
	}
	return res, nil
}

// DeactivateClient refuses while the client still holds open or approved
// reservations, mirroring the booking engine's occupancy rule.
func (r *PostgresRepository) DeactivateClient(ctx context.Context, id string) error {
	var active bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE client_id=$1 AND status IN ('OPEN', 'APPROVED')
		)
	`, id).Scan(&active)
	if err != nil {
		return fmt.Errorf("check client reservations: %w", err)
	}
	if active {
		return fmt.Errorf("client %s: %w", id, ErrActiveReservations)
	}
	return r.deactivate(ctx, "clients", id)
}

// DeactivateSpace stops new bookings; existing reservations run their
// course untouched.
func (r *PostgresRepository) DeactivateSpace(ctx context.Context, id string) error {
	return r.deactivate(ctx, "spaces", id)
}

// DeactivateResource stops new bookings; committed inventory stays
// committed until the owning reservations close.
func (r *PostgresRepository) DeactivateResource(ctx context.Context, id string) error {
	return r.deactivate(ctx, "resources", id)
}

func (r *PostgresRepository) deactivate(ctx context.Context, table, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET status='inactive', updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", table[:len(table)-1], id, ErrNotFound)
	}
	return nil
}

// CheckClient implements the booking service's directory contract:
// nil for an active client, reservation.ErrNotFound for an unknown id,
// reservation.ErrInactive for a deactivated one.
func (r *PostgresRepository) CheckClient(ctx context.Context, clientID string) error {
	return r.check(ctx, "clients", "client", clientID)
}

func (r *PostgresRepository) CheckSpace(ctx context.Context, spaceID string) error {
	return r.check(ctx, "spaces", "space", spaceID)
}

func (r *PostgresRepository) check(ctx context.Context, table, kind, id string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM `+table+` WHERE id=$1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", kind, id, reservation.ErrNotFound)
		}
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if status != StatusActive {
		return fmt.Errorf("%s %s: %w", kind, id, reservation.ErrInactive)
	}
	return nil
}

// Resources returns every requested resource that exists, inactive rows
// included, so the caller can tell disabled from unknown.
func (r *PostgresRepository) Resources(ctx context.Context, resourceIDs []string) (map[string]reservation.ResourceInfo, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, total_quantity, status
		FROM resources
		WHERE id = ANY($1)
	`, resourceIDs)
	if err != nil {
		return nil, fmt.Errorf("select resources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]reservation.ResourceInfo, len(resourceIDs))
	for rows.Next() {
		var info reservation.ResourceInfo
		var status string
		if err := rows.Scan(&info.ID, &info.TotalQuantity, &status); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		info.Active = status == StatusActive
		out[info.ID] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
