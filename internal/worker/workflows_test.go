package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/jdholdren/garage/internal/garage"
)

func newTestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()

	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities{})
	return env
}

func TestSweepFeeds(t *testing.T) {
	env := newTestEnv(t)

	env.OnActivity(acts.AllFeedIDs, mock.Anything).Return([]string{"f1", "f2", "f3"}, nil)
	env.OnActivity(acts.SyncFeed, mock.Anything, "f1").Return(garage.SyncResult{Added: 2}, nil)
	env.OnActivity(acts.SyncFeed, mock.Anything, "f2").Return(garage.SyncResult{},
		temporal.NewNonRetryableApplicationError("bad calendar", errTypeParse, nil))
	env.OnActivity(acts.SyncFeed, mock.Anything, "f3").Return(garage.SyncResult{Unchanged: 1}, nil)

	env.ExecuteWorkflow(workflows{}.SweepFeeds, 2)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var summary garage.SweepSummary
	require.NoError(t, env.GetWorkflowResult(&summary))
	assert.Equal(t, 3, summary.Feeds)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Results["f1"].Added)
	assert.Equal(t, "bad calendar", summary.Failures["f2"])
}

func TestSweepFeeds_ListFails(t *testing.T) {
	env := newTestEnv(t)

	env.OnActivity(acts.AllFeedIDs, mock.Anything).Return(([]string)(nil),
		temporal.NewNonRetryableApplicationError("database is locked", "internal", nil))

	env.ExecuteWorkflow(workflows{}.SweepFeeds, 2)
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestSweepFeeds_NoFeeds(t *testing.T) {
	env := newTestEnv(t)

	env.OnActivity(acts.AllFeedIDs, mock.Anything).Return([]string{}, nil)

	env.ExecuteWorkflow(workflows{}.SweepFeeds, 0)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var summary garage.SweepSummary
	require.NoError(t, env.GetWorkflowResult(&summary))
	assert.Zero(t, summary.Feeds)
}

type fakeSyncer struct {
	err error
}

func (f fakeSyncer) FeedIDs(context.Context) ([]string, error) {
	return []string{"f1"}, nil
}

func (f fakeSyncer) Sync(context.Context, string) (garage.SyncResult, error) {
	return garage.SyncResult{Added: 1}, f.err
}

func TestSyncFeedActivity_Retryability(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		nonRetryable bool
	}{
		{name: "parse", err: &garage.ParseError{Err: errors.New("no VCALENDAR")}, nonRetryable: true},
		{name: "gone", err: fmt.Errorf("feed f1: %w", garage.ErrNotFound), nonRetryable: true},
		{name: "fetch", err: &garage.FetchError{URL: "https://example.com", Err: errors.New("timeout")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s testsuite.WorkflowTestSuite
			env := s.NewTestActivityEnvironment()
			env.RegisterActivity(&activities{syncer: fakeSyncer{err: tt.err}})

			_, err := env.ExecuteActivity(acts.SyncFeed, "f1")
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			if tt.nonRetryable {
				require.ErrorAs(t, err, &appErr)
				assert.True(t, appErr.NonRetryable())
				return
			}
			if errors.As(err, &appErr) {
				assert.False(t, appErr.NonRetryable())
			}
		})
	}
}

func TestSyncFeedActivity(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(&activities{syncer: fakeSyncer{}})

	val, err := env.ExecuteActivity(acts.SyncFeed, "f1")
	require.NoError(t, err)

	var res garage.SyncResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, 1, res.Added)
}
