package api

import (
	"context"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/serverutil"
)

// A sweep touches every feed, so it outlives the request that asked for it. At most one runs at
// a time; asking again while one is running gets the running one.
type sweepRunner struct {
	sweep func(context.Context) (garage.SweepSummary, error)

	mu     stdsync.Mutex
	cancel context.CancelFunc // Set while a sweep is running
	done   chan struct{}
	status sweepStatus
}

type sweepStatus struct {
	Running    bool                 `json:"running"`
	StartedAt  *time.Time           `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at"`
	Error      string               `json:"error,omitempty"`
	Summary    *garage.SweepSummary `json:"summary"` // Of the last finished sweep
}

func newSweepRunner(sweep func(context.Context) (garage.SweepSummary, error)) *sweepRunner {
	return &sweepRunner{sweep: sweep}
}

// start kicks off a sweep unless one is already running. The sweep keeps the values of ctx but
// not its cancellation.
func (r *sweepRunner) start(ctx context.Context) sweepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Running {
		return r.status
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	now := time.Now()
	r.cancel, r.done = cancel, done
	r.status.Running, r.status.StartedAt, r.status.FinishedAt, r.status.Error = true, &now, nil, ""

	go func() {
		defer close(done)
		defer cancel()

		summary, err := r.sweep(runCtx)
		if err != nil {
			slog.ErrorContext(runCtx, "error sweeping feeds", "err", err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		finished := time.Now()
		r.status.Running, r.status.FinishedAt, r.cancel = false, &finished, nil
		if err != nil {
			r.status.Error = err.Error()
			return
		}
		r.status.Summary = &summary
	}()

	return r.status
}

func (r *sweepRunner) snapshot() sweepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// stop cancels a running sweep and waits for it to wind down, or for ctx to end.
func (r *sweepRunner) stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Starts a sweep and answers right away; progress is read back with getSweep.
func (s Server) postSweep(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusAccepted, s.sweeps.start(r.Context()))
}

func (s Server) getSweep(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, s.sweeps.snapshot())
}
