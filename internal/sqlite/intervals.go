package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/garage/internal/garage"
)

func (r Repo) Intervals(ctx context.Context, vehicleID string, rng garage.Range) ([]garage.Interval, error) {
	return intervals(ctx, r.db, vehicleID, rng)
}

// Loads every interval of the vehicle overlapping rng. Pending and cancelled bookings don't count.
func intervals(ctx context.Context, q sqlx.QueryerContext, vehicleID string, rng garage.Range) ([]garage.Interval, error) {
	const query = `
	SELECT 'booking' AS kind, id AS source_id, vehicle_id, start_date, end_date
	FROM bookings
	WHERE vehicle_id = ? AND status = 'confirmed' AND start_date <= ? AND end_date >= ?
	UNION ALL
	SELECT 'manual-block' AS kind, id AS source_id, vehicle_id, start_date, end_date
	FROM manual_blocks
	WHERE vehicle_id = ? AND start_date <= ? AND end_date >= ?
	UNION ALL
	SELECT 'external' AS kind, id AS source_id, vehicle_id, start_date, end_date
	FROM external_events
	WHERE vehicle_id = ? AND start_date <= ? AND end_date >= ?;
	`

	var ivs []garage.Interval
	if err := sqlx.SelectContext(ctx, q, &ivs, query,
		vehicleID, rng.End, rng.Start,
		vehicleID, rng.End, rng.Start,
		vehicleID, rng.End, rng.Start,
	); err != nil {
		return nil, fmt.Errorf("error selecting intervals: %s", err)
	}

	return ivs, nil
}

func (r Repo) CommitBooking(ctx context.Context, b garage.Booking) (garage.Booking, error) {
	if err := b.Validate(); err != nil {
		return garage.Booking{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString() + bookingNamespace
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return garage.Booking{}, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := vehicle(ctx, tx, b.VehicleID); err != nil {
		return garage.Booking{}, err
	}

	ivs, err := intervals(ctx, tx, b.VehicleID, b.Range)
	if err != nil {
		return garage.Booking{}, err
	}
	// Confirming an already confirmed booking again must not trip over itself.
	others := ivs[:0]
	for _, iv := range ivs {
		if iv.Kind == garage.SourceBooking && iv.SourceID == b.ID {
			continue
		}
		others = append(others, iv)
	}
	if !garage.RangeAvailable(b.Range, others) {
		return garage.Booking{}, fmt.Errorf("vehicle %s is not available for %s: %w", b.VehicleID, b.Range, garage.ErrConflict)
	}

	const upsert = `INSERT INTO bookings (id, vehicle_id, status, start_date, end_date)
	VALUES (?, ?, 'confirmed', ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = 'confirmed',
		start_date = excluded.start_date,
		end_date = excluded.end_date
	WHERE bookings.vehicle_id = excluded.vehicle_id;`
	res, err := tx.ExecContext(ctx, upsert, b.ID, b.VehicleID, b.Start, b.End)
	if err != nil {
		return garage.Booking{}, fmt.Errorf("error committing booking: %s", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return garage.Booking{}, fmt.Errorf("booking %s belongs to another vehicle: %w", b.ID, garage.ErrConflict)
	}

	var committed garage.Booking
	const q = `SELECT id, vehicle_id, status, start_date, end_date, created_at FROM bookings WHERE id = ?;`
	if err := tx.GetContext(ctx, &committed, q, b.ID); err != nil {
		return garage.Booking{}, fmt.Errorf("error fetching committed booking: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return garage.Booking{}, fmt.Errorf("error committing transaction: %w", err)
	}

	return committed, nil
}

// VehicleBookings returns the confirmed bookings of a vehicle.
func (r Repo) VehicleBookings(ctx context.Context, vehicleID string) ([]garage.Booking, error) {
	const q = `SELECT id, vehicle_id, status, start_date, end_date, created_at
	FROM bookings
	WHERE vehicle_id = ? AND status = 'confirmed'
	ORDER BY start_date, id;`

	var bookings []garage.Booking
	if err := r.db.SelectContext(ctx, &bookings, q, vehicleID); err != nil {
		return nil, fmt.Errorf("error selecting bookings: %s", err)
	}

	return bookings, nil
}
