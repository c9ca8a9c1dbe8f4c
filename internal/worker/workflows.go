package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jdholdren/garage/internal/garage"
)

type workflows struct{}

// SyncFeed syncs a single feed.
func (workflows) SyncFeed(ctx workflow.Context, feedID string) (garage.SyncResult, error) {
	ctx = workflow.WithActivityOptions(ctx, syncOptions)

	var res garage.SyncResult
	err := workflow.ExecuteActivity(ctx, acts.SyncFeed, feedID).Get(ctx, &res)
	return res, err
}

var syncOptions = workflow.ActivityOptions{
	// Fetch timeout plus the reconcile
	StartToCloseTimeout: 30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumAttempts:    3, // 0 is unlimited retries
	},
}

// SweepFeeds syncs every feed, at most parallelism at once. A failed feed is recorded in the
// summary and doesn't fail the sweep.
func (workflows) SweepFeeds(ctx workflow.Context, parallelism int) (garage.SweepSummary, error) {
	logger := workflow.GetLogger(ctx)
	if parallelism <= 0 {
		parallelism = 1
	}

	listCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})
	var ids []string
	if err := workflow.ExecuteActivity(listCtx, acts.AllFeedIDs).Get(ctx, &ids); err != nil {
		logger.Error("failed to list feeds", "error", err)
		return garage.SweepSummary{}, err
	}

	var (
		summary = garage.NewSweepSummary()
		sem     = workflow.NewSemaphore(ctx, int64(parallelism))
		wg      = workflow.NewWaitGroup(ctx)
	)
	summary.Feeds = len(ids)

	syncCtx := workflow.WithActivityOptions(ctx, syncOptions)
	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			return summary, err
		}

		wg.Add(1)
		workflow.Go(syncCtx, func(ctx workflow.Context) {
			defer wg.Done()
			defer sem.Release(1)

			var res garage.SyncResult
			if err := workflow.ExecuteActivity(ctx, acts.SyncFeed, id).Get(ctx, &res); err != nil {
				logger.Error("failed to sync feed", "feed_id", id, "error", err)
				summary.Failed++
				summary.Failures[id] = failureMessage(err)
				return
			}
			summary.Succeeded++
			summary.Results[id] = res
		})
	}

	wg.Wait(ctx)

	logger.Info("swept feeds", "feeds", summary.Feeds, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}
