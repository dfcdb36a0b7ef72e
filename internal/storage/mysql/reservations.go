package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"hostaway_sync/internal/domain"
)

const errDuplicateEntry = 1062

func (r *Repo) CreateReservation(ctx context.Context, rv domain.Reservation) (domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, insertReservationSQL,
		rv.OrderRef,
		rv.ExternalID,
		rv.PropertyID,
		day(rv.Checkin),
		day(rv.Checkout),
		rv.Guests,
		rv.Amount,
		rv.Currency,
		rv.GuestName,
		rv.GuestEmail,
		rv.Status,
		valJSON(rv.RawJSON),
	)
	if err != nil {
		var me *driver.MySQLError
		if errors.As(err, &me) && me.Number == errDuplicateEntry {
			return domain.Reservation{}, fmt.Errorf("order %s: %w", rv.OrderRef, domain.ErrConflict)
		}
		return domain.Reservation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Reservation{}, err
	}
	if err := markBooked(ctx, tx, rv.PropertyID, rv.Checkin, rv.Checkout); err != nil {
		return domain.Reservation{}, fmt.Errorf("mark booked: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, err
	}

	rv.ID = id
	rv.CreatedAt = time.Now().UTC()
	return rv, nil
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var rv domain.Reservation
	err := row.Scan(
		&rv.ID, &rv.OrderRef, &rv.ExternalID, &rv.PropertyID, &rv.Checkin,
		&rv.Checkout, &rv.Guests, &rv.Amount, &rv.Currency, &rv.GuestName,
		&rv.GuestEmail, &rv.Status, &rv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, getReservationSQL, id))
}

func (r *Repo) GetReservationByOrderRef(ctx context.Context, ref string) (domain.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, getReservationByOrderSQL, ref))
}

func (r *Repo) CancelReservation(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		propertyID        int64
		checkin, checkout time.Time
		status            string
	)
	err = tx.QueryRowContext(ctx, lockReservationSQL, id).Scan(&propertyID, &checkin, &checkout, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == domain.ReservationCancelled {
		return nil
	}
	if _, err := tx.ExecContext(ctx, cancelReservationSQL, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, freeNightsSQL, propertyID, day(checkin), day(checkout)); err != nil {
		return fmt.Errorf("free nights: %w", err)
	}
	return tx.Commit()
}
