package worker

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/jdholdren/garage/internal/garage"
)

// Syncer is the part of the ingestion service the worker drives.
type Syncer interface {
	FeedIDs(ctx context.Context) ([]string, error)
	Sync(ctx context.Context, feedID string) (garage.SyncResult, error)
}

type activities struct {
	syncer Syncer
}

// Instance to make the workflow a bit more readable
var acts = activities{}

// Lists every feed registered in the system.
func (a activities) AllFeedIDs(ctx context.Context) ([]string, error) {
	ids, err := a.syncer.FeedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing feeds: %w", err)
	}

	return ids, nil
}

// Fetches one feed and reconciles its events.
//
// A document that won't parse, or a feed that was deleted in the meantime, won't get better on a
// retry; those fail without one. Fetch errors are retried.
func (a activities) SyncFeed(ctx context.Context, feedID string) (garage.SyncResult, error) {
	res, err := a.syncer.Sync(ctx, feedID)

	var parseErr *garage.ParseError
	switch {
	case err == nil:
		activity.GetLogger(ctx).Info("synced feed", "feed_id", feedID, "added", res.Added, "removed", res.Removed)
		return res, nil
	case errors.As(err, &parseErr):
		return garage.SyncResult{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeParse, err)
	case errors.Is(err, garage.ErrNotFound):
		return garage.SyncResult{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotFound, err)
	}

	return garage.SyncResult{}, err
}
