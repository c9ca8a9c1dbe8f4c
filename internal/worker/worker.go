// Package worker runs the feed sweep on Temporal: a schedule starts [workflows.SweepFeeds] on an
// interval, which fans out one activity per feed.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

const (
	TaskQueue = "garage"

	sweepScheduleID = "sweep_feeds"
)

type Config struct {
	SweepInterval    time.Duration
	SweepParallelism int
}

// NewWorker sets up the worker with registration of workflows, activities, and schedules.
func NewWorker(ctx context.Context, syncer Syncer, cli client.Client, cfg Config) (worker.Worker, error) {
	a := activities{
		syncer: syncer,
	}

	w := worker.New(cli, TaskQueue, worker.Options{})

	if err := registerEverything(ctx, w, a, cli, cfg); err != nil {
		return nil, fmt.Errorf("error registering workflows and activities: %T, %v", err, err)
	}

	return w, nil
}

func registerEverything(ctx context.Context, w worker.Worker, a activities, cli client.Client, cfg Config) error {
	// Workflows
	wfs := workflows{}
	w.RegisterWorkflow(wfs.SyncFeed)
	w.RegisterWorkflow(wfs.SweepFeeds)

	// Activities
	w.RegisterActivity(&a)

	// Schedules:
	// Sweep external calendars
	spec := client.ScheduleSpec{
		Intervals: []client.ScheduleIntervalSpec{{Every: cfg.SweepInterval}},
	}
	action := &client.ScheduleWorkflowAction{
		ID:        sweepScheduleID,
		Workflow:  wfs.SweepFeeds,
		Args:      []any{cfg.SweepParallelism},
		TaskQueue: TaskQueue,
	}

	handle := cli.ScheduleClient().GetHandle(ctx, sweepScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		handle, err = cli.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID:                 sweepScheduleID,
			Spec:               spec,
			Action:             action,
			TriggerImmediately: true,
		})
		if err != nil {
			return err
		}
	}
	// Existing schedules pick up a changed interval or parallelism.
	return handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			schedule := input.Description.Schedule
			schedule.Spec = &spec
			schedule.Action = action
			return &client.ScheduleUpdate{
				Schedule: &schedule,
			}, nil
		},
	})
}
