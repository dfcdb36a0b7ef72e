package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hostaway_sync/internal/domain"
)

// rows per multi-row INSERT; keeps statements well under max_allowed_packet
const insertBatch = 500

// ReplaceCalendar rewrites the whole window inside one transaction so a
// concurrent reader sees either the old or the new calendar, never a gap.
func (r *Repo) ReplaceCalendar(ctx context.Context, propertyID int64, start, end time.Time, rates []domain.Rate, avail []domain.Availability) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, deleteRatesSQL, propertyID, day(start), day(end)); err != nil {
		return fmt.Errorf("clear rates: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteAvailabilitySQL, propertyID, day(start), day(end)); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}

	for i := 0; i < len(rates); i += insertBatch {
		chunk := rates[i:min(i+insertBatch, len(rates))]
		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*6)
		for _, rt := range chunk {
			values = append(values, "(?,?,?,?,?,?)")
			args = append(args, propertyID, day(rt.Date), rt.Price, rt.MinNights, rt.MaxGuests, rt.Currency)
		}
		if _, err := tx.ExecContext(ctx, insertRatesPrefix+strings.Join(values, ","), args...); err != nil {
			return fmt.Errorf("insert rates: %w", err)
		}
	}

	for i := 0; i < len(avail); i += insertBatch {
		chunk := avail[i:min(i+insertBatch, len(avail))]
		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*4)
		for _, a := range chunk {
			values = append(values, "(?,?,?,?)")
			args = append(args, propertyID, day(a.Date), a.IsBooked, a.IsAvailable)
		}
		if _, err := tx.ExecContext(ctx, insertAvailabilityPrefix+strings.Join(values, ","), args...); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}

	return tx.Commit()
}

func (r *Repo) GetRates(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.Rate, error) {
	rows, err := r.db.QueryContext(ctx, getRatesSQL, propertyID, day(start), day(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Rate{}
	for rows.Next() {
		var rt domain.Rate
		if err := rows.Scan(&rt.PropertyID, &rt.Date, &rt.Price, &rt.MinNights, &rt.MaxGuests, &rt.Currency); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *Repo) GetAvailability(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.Availability, error) {
	rows, err := r.db.QueryContext(ctx, getAvailabilitySQL, propertyID, day(start), day(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Availability{}
	for rows.Next() {
		var a domain.Availability
		if err := rows.Scan(&a.PropertyID, &a.Date, &a.IsBooked, &a.IsAvailable); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// markBooked flags every night of [checkin, checkout) booked within tx.
func markBooked(ctx context.Context, tx *sql.Tx, propertyID int64, checkin, checkout time.Time) error {
	nights := domain.Nights(checkin, checkout)
	if len(nights) == 0 {
		return nil
	}
	values := make([]string, 0, len(nights))
	args := make([]any, 0, len(nights)*4)
	for _, n := range nights {
		values = append(values, "(?,?,?,?)")
		args = append(args, propertyID, day(n), true, false)
	}
	_, err := tx.ExecContext(ctx, markBookedPrefix+strings.Join(values, ",")+markBookedOnDup, args...)
	return err
}
