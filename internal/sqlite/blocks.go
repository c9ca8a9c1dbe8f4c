package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jdholdren/garage/internal/garage"
)

// InsertBlock checks for overlapping bookings and blocks and inserts in the same transaction, so
// two overlapping blocks racing each other can't both land.
func (r Repo) InsertBlock(ctx context.Context, b garage.ManualBlock) (garage.ManualBlock, error) {
	if err := b.Validate(); err != nil {
		return garage.ManualBlock{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return garage.ManualBlock{}, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := vehicle(ctx, tx, b.VehicleID); err != nil {
		return garage.ManualBlock{}, err
	}

	// External events are allowed underneath a block, so only these two count.
	const conflictQ = `
	SELECT 'booking' AS kind, id AS source_id, vehicle_id, start_date, end_date
	FROM bookings
	WHERE vehicle_id = ? AND status = 'confirmed' AND start_date <= ? AND end_date >= ?
	UNION ALL
	SELECT 'manual-block' AS kind, id AS source_id, vehicle_id, start_date, end_date
	FROM manual_blocks
	WHERE vehicle_id = ? AND start_date <= ? AND end_date >= ?
	LIMIT 1;
	`
	var conflict garage.Interval
	err = tx.GetContext(ctx, &conflict, conflictQ, b.VehicleID, b.End, b.Start, b.VehicleID, b.End, b.Start)
	if err == nil {
		return garage.ManualBlock{}, fmt.Errorf("block %s overlaps %s %s (%s): %w", b.Range, conflict.Kind, conflict.SourceID, conflict.Range, garage.ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return garage.ManualBlock{}, fmt.Errorf("error checking for conflicts: %s", err)
	}

	b.ID = uuid.NewString() + blockNamespace
	const insertQ = `INSERT INTO manual_blocks (id, vehicle_id, reason, start_date, end_date)
	VALUES (:id, :vehicle_id, :reason, :start_date, :end_date);`
	if _, err := tx.NamedExecContext(ctx, insertQ, b); err != nil {
		return garage.ManualBlock{}, fmt.Errorf("error inserting block: %s", err)
	}

	var created garage.ManualBlock
	const selectQ = `SELECT id, vehicle_id, reason, start_date, end_date, created_at FROM manual_blocks WHERE id = ?;`
	if err := tx.GetContext(ctx, &created, selectQ, b.ID); err != nil {
		return garage.ManualBlock{}, fmt.Errorf("error fetching created block: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return garage.ManualBlock{}, fmt.Errorf("error committing transaction: %w", err)
	}

	return created, nil
}

// DeleteBlock removes a block. Removing one that doesn't exist is not an error.
func (r Repo) DeleteBlock(ctx context.Context, id string) error {
	const q = `DELETE FROM manual_blocks WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("error deleting block: %s", err)
	}

	return nil
}

// DeleteVehicleBlocks removes every block of the vehicle and returns how many there were.
func (r Repo) DeleteVehicleBlocks(ctx context.Context, vehicleID string) (int, error) {
	const q = `DELETE FROM manual_blocks WHERE vehicle_id = ?;`

	res, err := r.db.ExecContext(ctx, q, vehicleID)
	if err != nil {
		return 0, fmt.Errorf("error deleting vehicle blocks: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deleted blocks: %s", err)
	}

	return int(n), nil
}

func (r Repo) VehicleBlocks(ctx context.Context, vehicleID string) ([]garage.ManualBlock, error) {
	const q = `SELECT id, vehicle_id, reason, start_date, end_date, created_at
	FROM manual_blocks
	WHERE vehicle_id = ?
	ORDER BY start_date, id;`

	var blocks []garage.ManualBlock
	if err := r.db.SelectContext(ctx, &blocks, q, vehicleID); err != nil {
		return nil, fmt.Errorf("error selecting blocks: %s", err)
	}

	return blocks, nil
}
