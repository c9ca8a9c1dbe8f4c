// Package databasetest provides migrated throwaway databases for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/garage/internal/database"
)

// New opens a fresh, migrated database that is removed when the test ends.
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	dbx, err := database.Open(filepath.Join(t.TempDir(), "garage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	return dbx
}

// InsertVehicle adds a vehicle row the way the marketplace would.
func InsertVehicle(t *testing.T, dbx *sqlx.DB, id, companyID, name string) {
	t.Helper()

	const q = `INSERT INTO vehicles (id, company_id, name) VALUES (?, ?, ?);`
	_, err := dbx.ExecContext(context.Background(), q, id, companyID, name)
	require.NoError(t, err)
}

// InsertBooking adds a booking row directly, bypassing availability checks.
func InsertBooking(t *testing.T, dbx *sqlx.DB, id, vehicleID, status, start, end string) {
	t.Helper()

	const q = `INSERT INTO bookings (id, vehicle_id, status, start_date, end_date) VALUES (?, ?, ?, ?, ?);`
	_, err := dbx.ExecContext(context.Background(), q, id, vehicleID, status, start, end)
	require.NoError(t, err)
}
