package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/ledger"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresRepository(mock, ledger.NewRepository())
}

func expectBegin(mock pgxmock.PgxPoolIface) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
}

func reservationColumns() []string {
	return []string{"id", "client_id", "space_id", "start_date", "end_date", "status", "created_at", "updated_at", "closed_at"}
}

func TestRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := time.Now().UTC()

	t.Run("books space and debits inventory atomically", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		res := &Reservation{
			ID: "res-1", ClientID: "c1", SpaceID: "s1",
			StartDate: start, EndDate: end,
			Resources: []ResourceLine{{ResourceID: "r1", Quantity: 2}},
		}

		expectBegin(mock)
		mock.ExpectQuery("SELECT status FROM spaces").
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("active"))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("s1", start, end, "").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("INSERT INTO reservations").
			WithArgs("res-1", "c1", "s1", start, end, StatusOpen).
			WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec("INSERT INTO reservation_resources").
			WithArgs("res-1", "r1", 2).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery("SELECT total_quantity, committed").
			WithArgs("r1").
			WillReturnRows(pgxmock.NewRows([]string{"total_quantity", "committed"}).AddRow(5, 0))
		mock.ExpectExec("UPDATE resources").
			WithArgs("r1", 2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO inventory_ledger").
			WithArgs(pgxmock.AnyArg(), "r1", "res-1", 2).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		mock.ExpectRollback() // deferred no-op after commit

		require.NoError(t, repo.Create(ctx, res))
		require.Equal(t, StatusOpen, res.Status)
		require.Equal(t, now, res.CreatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overlapping window fails with ErrSlotUnavailable", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		res := &Reservation{ID: "res-1", ClientID: "c1", SpaceID: "s1", StartDate: start, EndDate: end}

		expectBegin(mock)
		mock.ExpectQuery("SELECT status FROM spaces").
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("active"))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("s1", start, end, "").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := repo.Create(ctx, res)
		require.ErrorIs(t, err, ErrSlotUnavailable)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown space fails with ErrNotFound", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		res := &Reservation{ID: "res-1", ClientID: "c1", SpaceID: "ghost", StartDate: start, EndDate: end}

		expectBegin(mock)
		mock.ExpectQuery("SELECT status FROM spaces").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		require.ErrorIs(t, repo.Create(ctx, res), ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive space fails with ErrInactive", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		res := &Reservation{ID: "res-1", ClientID: "c1", SpaceID: "s1", StartDate: start, EndDate: end}

		expectBegin(mock)
		mock.ExpectQuery("SELECT status FROM spaces").
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("inactive"))
		mock.ExpectRollback()

		require.ErrorIs(t, repo.Create(ctx, res), ErrInactive)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient inventory rolls everything back", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		res := &Reservation{
			ID: "res-1", ClientID: "c1", SpaceID: "s1",
			StartDate: start, EndDate: end,
			Resources: []ResourceLine{{ResourceID: "r1", Quantity: 2}},
		}

		expectBegin(mock)
		mock.ExpectQuery("SELECT status FROM spaces").
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("active"))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("s1", start, end, "").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("INSERT INTO reservations").
			WithArgs("res-1", "c1", "s1", start, end, StatusOpen).
			WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec("INSERT INTO reservation_resources").
			WithArgs("res-1", "r1", 2).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery("SELECT total_quantity, committed").
			WithArgs("r1").
			WillReturnRows(pgxmock.NewRows([]string{"total_quantity", "committed"}).AddRow(5, 4))
		mock.ExpectRollback()

		err := repo.Create(ctx, res)
		require.ErrorIs(t, err, ledger.ErrInsufficientInventory)
		require.Contains(t, err.Error(), "r1")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock timeout surfaces as ErrContention", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		res := &Reservation{ID: "res-1", ClientID: "c1", SpaceID: "s1", StartDate: start, EndDate: end}

		expectBegin(mock)
		mock.ExpectQuery("SELECT status FROM spaces").
			WithArgs("s1").
			WillReturnError(&pgconn.PgError{Code: "55P03"})
		mock.ExpectRollback()

		require.ErrorIs(t, repo.Create(ctx, res), ErrContention)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := time.Now().UTC()

	t.Run("open to approved", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectQuery("UPDATE reservations").
			WithArgs("res-1", StatusApproved).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at", "closed_at"}).AddRow(now, nil))
		mock.ExpectQuery("SELECT resource_id, quantity").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"resource_id", "quantity"}))
		mock.ExpectCommit()
		mock.ExpectRollback()

		res, err := repo.UpdateStatus(ctx, "res-1", StatusApproved)
		require.NoError(t, err)
		require.Equal(t, StatusApproved, res.Status)
		require.Nil(t, res.ClosedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("canceled target rejected without touching the row", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectRollback()

		_, err := repo.UpdateStatus(ctx, "res-1", StatusCanceled)
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delivered is terminal", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		closed := now
		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusDelivered, now, now, &closed))
		mock.ExpectRollback()

		_, err := repo.UpdateStatus(ctx, "res-1", StatusApproved)
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown reservation", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.UpdateStatus(ctx, "ghost", StatusApproved)
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryCancel(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := time.Now().UTC()

	t.Run("releases inventory in the same transaction", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectQuery("UPDATE reservations").
			WithArgs("res-1", StatusCanceled).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at", "closed_at"}).AddRow(now, &now))
		mock.ExpectQuery("SELECT resource_id, quantity").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"resource_id", "quantity"}).AddRow("r1", 2))
		mock.ExpectQuery("SELECT committed").
			WithArgs("r1").
			WillReturnRows(pgxmock.NewRows([]string{"committed"}).AddRow(2))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("res-1", "r1").
			WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(2))
		mock.ExpectExec("UPDATE resources").
			WithArgs("r1", -2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO inventory_ledger").
			WithArgs(pgxmock.AnyArg(), "r1", "res-1", -2).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		mock.ExpectRollback()

		res, err := repo.Cancel(ctx, "res-1")
		require.NoError(t, err)
		require.Equal(t, StatusCanceled, res.Status)
		require.NotNil(t, res.ClosedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second cancel fails before touching the ledger", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		closed := now
		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusCanceled, now, now, &closed))
		mock.ExpectRollback()

		_, err := repo.Cancel(ctx, "res-1")
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("release inconsistency aborts the cancel", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		expectBegin(mock)
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectQuery("UPDATE reservations").
			WithArgs("res-1", StatusCanceled).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at", "closed_at"}).AddRow(now, &now))
		mock.ExpectQuery("SELECT resource_id, quantity").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"resource_id", "quantity"}).AddRow("r1", 2))
		mock.ExpectQuery("SELECT committed").
			WithArgs("r1").
			WillReturnRows(pgxmock.NewRows([]string{"committed"}).AddRow(1))
		mock.ExpectRollback()

		_, err := repo.Cancel(ctx, "res-1")
		require.ErrorIs(t, err, ledger.ErrInconsistency)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryUpdateWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := time.Now().UTC()

	t.Run("re-checks availability excluding itself", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		newEnd := end.Add(time.Hour)

		expectBegin(mock)
		mock.ExpectQuery("SELECT space_id FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"space_id"}).AddRow("s1"))
		mock.ExpectExec("SELECT id FROM spaces").
			WithArgs("s1").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("s1", start, newEnd, "res-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("UPDATE reservations").
			WithArgs("res-1", start, newEnd).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectQuery("SELECT resource_id, quantity").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"resource_id", "quantity"}))
		mock.ExpectCommit()
		mock.ExpectRollback()

		res, err := repo.UpdateWindow(ctx, "res-1", nil, &newEnd)
		require.NoError(t, err)
		require.Equal(t, newEnd, res.EndDate)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal reservation cannot move", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		closed := now
		newEnd := end.Add(time.Hour)

		expectBegin(mock)
		mock.ExpectQuery("SELECT space_id FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"space_id"}).AddRow("s1"))
		mock.ExpectExec("SELECT id FROM spaces").
			WithArgs("s1").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusCanceled, now, now, &closed))
		mock.ExpectRollback()

		_, err := repo.UpdateWindow(ctx, "res-1", nil, &newEnd)
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		badEnd := start.Add(-time.Hour)

		expectBegin(mock)
		mock.ExpectQuery("SELECT space_id FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"space_id"}).AddRow("s1"))
		mock.ExpectExec("SELECT id FROM spaces").
			WithArgs("s1").
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectRollback()

		_, err := repo.UpdateWindow(ctx, "res-1", nil, &badEnd)
		require.ErrorIs(t, err, ErrInvalidInput)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryFindByID(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := time.Now().UTC()

	t.Run("loads lines", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		mock.ExpectQuery("FROM reservations").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows(reservationColumns()).
				AddRow("res-1", "c1", "s1", start, end, StatusOpen, now, now, nil))
		mock.ExpectQuery("SELECT resource_id, quantity").
			WithArgs("res-1").
			WillReturnRows(pgxmock.NewRows([]string{"resource_id", "quantity"}).
				AddRow("r1", 2).
				AddRow("r2", 1))

		res, err := repo.FindByID(ctx, "res-1")
		require.NoError(t, err)
		require.Equal(t, []ResourceLine{{ResourceID: "r1", Quantity: 2}, {ResourceID: "r2", Quantity: 1}}, res.Resources)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		mock, repo := newMockRepo(t)

		mock.ExpectQuery("FROM reservations").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.FindByID(ctx, "ghost")
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
