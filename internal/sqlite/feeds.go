package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jdholdren/garage/internal/garage"
)

const feedColumns = `id, vehicle_id, url, name, last_synced_at, created_at, updated_at`

const insertBatchSize = 500

func (r Repo) Feed(ctx context.Context, id string) (garage.Feed, error) {
	const q = `SELECT ` + feedColumns + ` FROM external_feeds WHERE id = ?;`

	var feed garage.Feed
	err := r.db.GetContext(ctx, &feed, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return garage.Feed{}, fmt.Errorf("feed %s: %w", id, garage.ErrNotFound)
	}
	if err != nil {
		return garage.Feed{}, fmt.Errorf("error fetching feed: %s", err)
	}

	return feed, nil
}

func (r Repo) VehicleFeeds(ctx context.Context, vehicleID string) ([]garage.Feed, error) {
	const q = `SELECT ` + feedColumns + ` FROM external_feeds WHERE vehicle_id = ? ORDER BY created_at, id;`

	var feeds []garage.Feed
	if err := r.db.SelectContext(ctx, &feeds, q, vehicleID); err != nil {
		return nil, fmt.Errorf("error selecting vehicle feeds: %s", err)
	}

	return feeds, nil
}

// AllFeedIDs retrieves the id of _every_ feed, for sweeping.
func (r Repo) AllFeedIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM external_feeds ORDER BY id;`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("error selecting feed ids: %s", err)
	}

	return ids, nil
}

func (r Repo) InsertFeed(ctx context.Context, f garage.Feed) (garage.Feed, error) {
	const q = `INSERT INTO external_feeds (id, vehicle_id, url, name) VALUES (:id, :vehicle_id, :url, :name);`

	f.ID = uuid.NewString() + feedNamespace
	_, err := r.db.NamedExecContext(ctx, q, f)
	if isUniqueViolation(err) {
		return garage.Feed{}, fmt.Errorf("feed already registered for vehicle: %w", garage.ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return garage.Feed{}, fmt.Errorf("vehicle %s: %w", f.VehicleID, garage.ErrNotFound)
	}
	if err != nil {
		return garage.Feed{}, fmt.Errorf("error inserting feed: %s", err)
	}

	return r.Feed(ctx, f.ID)
}

// DeleteFeed removes the feed along with every event it brought in. Deleting an unknown feed is a no-op.
func (r Repo) DeleteFeed(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM external_events WHERE feed_id = ?;`, id); err != nil {
		return fmt.Errorf("error deleting feed events: %s", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM external_feeds WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("error deleting feed: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (r Repo) VehicleExternalEvents(ctx context.Context, vehicleID string) ([]garage.ExternalEvent, error) {
	const q = `SELECT id, feed_id, vehicle_id, external_uid, summary, start_date, end_date, created_at, updated_at
	FROM external_events
	WHERE vehicle_id = ?
	ORDER BY start_date, id;`

	var events []garage.ExternalEvent
	if err := r.db.SelectContext(ctx, &events, q, vehicleID); err != nil {
		return nil, fmt.Errorf("error selecting external events: %s", err)
	}

	return events, nil
}

func (r Repo) ReconcileFeedEvents(ctx context.Context, feedID string, fetched []garage.ExternalEvent, syncedAt time.Time) (garage.SyncResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return garage.SyncResult{}, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var feed garage.Feed
	err = tx.GetContext(ctx, &feed, `SELECT `+feedColumns+` FROM external_feeds WHERE id = ?;`, feedID)
	if errors.Is(err, sql.ErrNoRows) {
		// Deleted while the fetch was in flight.
		return garage.SyncResult{}, fmt.Errorf("feed %s: %w", feedID, garage.ErrNotFound)
	}
	if err != nil {
		return garage.SyncResult{}, fmt.Errorf("error fetching feed: %s", err)
	}

	var stored []garage.ExternalEvent
	const storedQ = `SELECT id, feed_id, vehicle_id, external_uid, summary, start_date, end_date, created_at, updated_at
	FROM external_events WHERE feed_id = ?;`
	if err := tx.SelectContext(ctx, &stored, storedQ, feedID); err != nil {
		return garage.SyncResult{}, fmt.Errorf("error selecting stored events: %s", err)
	}

	diff := garage.DiffEvents(stored, fetched)

	if len(diff.Insert) > 0 {
		for i := range diff.Insert {
			diff.Insert[i].ID = uuid.NewString() + eventNamespace
			diff.Insert[i].FeedID = feed.ID
			diff.Insert[i].VehicleID = feed.VehicleID
			diff.Insert[i].CreatedAt = syncedAt
			diff.Insert[i].UpdatedAt = syncedAt
		}

		const q = `INSERT INTO external_events (id, feed_id, vehicle_id, external_uid, summary, start_date, end_date, created_at, updated_at)
		VALUES (:id, :feed_id, :vehicle_id, :external_uid, :summary, :start_date, :end_date, :created_at, :updated_at);`
		// Batched to stay under sqlite's bound variable limit.
		for batch := range slices.Chunk(diff.Insert, insertBatchSize) {
			if _, err := tx.NamedExecContext(ctx, q, batch); err != nil {
				return garage.SyncResult{}, fmt.Errorf("error inserting events: %s", err)
			}
		}
	}

	for _, ev := range diff.Update {
		const q = `UPDATE external_events SET summary = ?, start_date = ?, end_date = ?, updated_at = ? WHERE id = ?;`
		if _, err := tx.ExecContext(ctx, q, ev.Summary, ev.Start, ev.End, syncedAt, ev.ID); err != nil {
			return garage.SyncResult{}, fmt.Errorf("error updating event: %s", err)
		}
	}

	if len(diff.Delete) > 0 {
		query, args, err := sq.Delete("external_events").Where(sq.Eq{"id": diff.Delete}).ToSql()
		if err != nil {
			return garage.SyncResult{}, fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return garage.SyncResult{}, fmt.Errorf("error deleting events: %s", err)
		}
	}

	query, args, err := sq.Update("external_feeds").
		Set("last_synced_at", syncedAt).
		Set("updated_at", syncedAt).
		Where(sq.Eq{"id": feedID}).
		ToSql()
	if err != nil {
		return garage.SyncResult{}, fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return garage.SyncResult{}, fmt.Errorf("error marking feed synced: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return garage.SyncResult{}, fmt.Errorf("error committing transaction: %w", err)
	}

	return diff.Result(), nil
}
