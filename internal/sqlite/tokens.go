package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jdholdren/garage/internal/garage"
)

func (r Repo) FeedToken(ctx context.Context, vehicleID string) (garage.FeedToken, error) {
	const q = `SELECT vehicle_id, token, issued_at FROM feed_tokens WHERE vehicle_id = ?;`

	var tok garage.FeedToken
	err := r.db.GetContext(ctx, &tok, q, vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return garage.FeedToken{}, fmt.Errorf("feed token for %s: %w", vehicleID, garage.ErrNotFound)
	}
	if err != nil {
		return garage.FeedToken{}, fmt.Errorf("error fetching feed token: %s", err)
	}

	return tok, nil
}

// PutFeedToken swaps in a new token in a single statement, so the old one stops matching the
// moment this returns.
func (r Repo) PutFeedToken(ctx context.Context, t garage.FeedToken) error {
	const q = `INSERT INTO feed_tokens (vehicle_id, token, issued_at)
	VALUES (:vehicle_id, :token, :issued_at)
	ON CONFLICT (vehicle_id) DO UPDATE SET token = excluded.token, issued_at = excluded.issued_at;`

	_, err := r.db.NamedExecContext(ctx, q, t)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("vehicle %s: %w", t.VehicleID, garage.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("token collision: %w", garage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("error storing feed token: %s", err)
	}

	return nil
}
