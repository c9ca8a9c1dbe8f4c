package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/garage/internal/garage"
)

func (r Repo) Vehicle(ctx context.Context, id string) (garage.Vehicle, error) {
	return vehicle(ctx, r.db, id)
}

func vehicle(ctx context.Context, q sqlx.QueryerContext, id string) (garage.Vehicle, error) {
	const query = `SELECT id, company_id, name, created_at FROM vehicles WHERE id = ?;`

	var v garage.Vehicle
	err := sqlx.GetContext(ctx, q, &v, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return garage.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, garage.ErrNotFound)
	}
	if err != nil {
		return garage.Vehicle{}, fmt.Errorf("error fetching vehicle: %s", err)
	}

	return v, nil
}

func (r Repo) CompanyVehicleIDs(ctx context.Context, companyID string) ([]string, error) {
	const q = `SELECT id FROM vehicles WHERE company_id = ? ORDER BY id;`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q, companyID); err != nil {
		return nil, fmt.Errorf("error selecting company vehicles: %s", err)
	}

	return ids, nil
}
