// Package ingest keeps the external events of a vehicle in step with the calendars registered
// against it: one feed on demand, or all of them in a sweep.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/logger"
	"github.com/jdholdren/garage/internal/sync"
)

// ErrInvalidFeedURL is returned when registering a feed whose URL isn't absolute http(s).
var ErrInvalidFeedURL = errors.New("feed url must be an absolute http or https url")

// Recurring events are expanded from this many days in the past.
const lookbackDays = 30

// Fetcher retrieves the raw calendar document at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

type Config struct {
	// Days ahead of today that recurring events are expanded for.
	HorizonDays int
	// Max feeds fetched at once during a sweep.
	Parallelism int
}

type Service struct {
	repo    garage.FeedRepo
	fetcher Fetcher
	cfg     Config
	now     func() time.Time
}

func New(repo garage.FeedRepo, fetcher Fetcher, cfg Config) *Service {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 365
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}

	return &Service{
		repo:    repo,
		fetcher: fetcher,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RegisterFeed stores a new feed for the vehicle and syncs it once. If that first sync fails the
// feed is removed again and the sync's error is returned.
func (s *Service) RegisterFeed(ctx context.Context, vehicleID, feedURL, name string) (garage.Feed, garage.SyncResult, error) {
	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return garage.Feed{}, garage.SyncResult{}, ErrInvalidFeedURL
	}

	feed, err := s.repo.InsertFeed(ctx, garage.Feed{VehicleID: vehicleID, URL: feedURL, Name: name})
	if err != nil {
		return garage.Feed{}, garage.SyncResult{}, err
	}

	res, err := s.Sync(ctx, feed.ID)
	if err != nil {
		if err := s.repo.DeleteFeed(ctx, feed.ID); err != nil {
			slog.ErrorContext(ctx, "error removing feed after failed sync", "feed_id", feed.ID, "err", err)
		}
		return garage.Feed{}, garage.SyncResult{}, err
	}

	feed, err = s.repo.Feed(ctx, feed.ID)
	if err != nil {
		return garage.Feed{}, garage.SyncResult{}, err
	}

	return feed, res, nil
}

// DeleteFeed removes the feed and all of its events. Deleting an unknown feed is a no-op.
func (s *Service) DeleteFeed(ctx context.Context, feedID string) error {
	return s.repo.DeleteFeed(ctx, feedID)
}

func (s *Service) ListFeeds(ctx context.Context, vehicleID string) ([]garage.Feed, error) {
	if _, err := s.repo.Vehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	return s.repo.VehicleFeeds(ctx, vehicleID)
}

// FeedIDs lists every registered feed, for callers that schedule syncs themselves.
func (s *Service) FeedIDs(ctx context.Context) ([]string, error) {
	return s.repo.AllFeedIDs(ctx)
}

// Sync fetches the feed, parses it and reconciles the stored events against it.
//
// On a fetch or parse failure nothing is written: the events from the last good sync stay, and
// so does the feed's last sync time. Nothing is held in the store while the fetch is in flight.
func (s *Service) Sync(ctx context.Context, feedID string) (garage.SyncResult, error) {
	start := time.Now()
	defer func() { syncDuration.Observe(time.Since(start).Seconds()) }()

	feed, err := s.repo.Feed(ctx, feedID)
	if err != nil {
		syncsTotal.WithLabelValues(outcomeError).Inc()
		return garage.SyncResult{}, err
	}
	ctx = logger.Ctx(ctx,
		slog.String("feed_id", feed.ID),
		slog.String("vehicle_id", feed.VehicleID),
		slog.String("url", sync.RedactURL(feed.URL)),
	)

	body, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		slog.ErrorContext(ctx, "error fetching feed", "err", err)
		syncsTotal.WithLabelValues(outcomeFetchError).Inc()
		return garage.SyncResult{}, err
	}

	now := s.now()
	today := garage.DateOf(now.UTC())
	window := garage.Range{Start: today.AddDays(-lookbackDays), End: today.AddDays(s.cfg.HorizonDays)}

	parsed, err := sync.Parse(body, window)
	if err != nil {
		slog.ErrorContext(ctx, "error parsing feed", "err", err)
		syncsTotal.WithLabelValues(outcomeParseError).Inc()
		return garage.SyncResult{}, err
	}

	res, err := s.repo.ReconcileFeedEvents(ctx, feed.ID, parsed.Events, now.UTC())
	if err != nil {
		slog.ErrorContext(ctx, "error reconciling feed events", "err", err)
		syncsTotal.WithLabelValues(outcomeError).Inc()
		return garage.SyncResult{}, fmt.Errorf("error reconciling feed %s: %w", feed.ID, err)
	}
	res.Skipped = parsed.Skipped

	syncsTotal.WithLabelValues(outcomeOK).Inc()
	recordResult(res)
	slog.InfoContext(ctx, "synced feed",
		"added", res.Added,
		"updated", res.Updated,
		"removed", res.Removed,
		"unchanged", res.Unchanged,
		"skipped", res.Skipped,
	)

	return res, nil
}

// Sweep syncs every feed, a bounded number at a time. A failing feed is recorded in the summary
// and doesn't stop the others; only failing to list the feeds fails the sweep.
func (s *Service) Sweep(ctx context.Context) (garage.SweepSummary, error) {
	ids, err := s.repo.AllFeedIDs(ctx)
	if err != nil {
		return garage.SweepSummary{}, err
	}

	var (
		mu      stdsync.Mutex
		summary = garage.NewSweepSummary()
	)
	summary.Feeds = len(ids)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			res, err := s.Sync(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Failures[id] = err.Error()
				return nil
			}
			summary.Succeeded++
			summary.Results[id] = res
			return nil
		})
	}
	// Feeds never return an error to the group.
	_ = g.Wait()

	slog.InfoContext(ctx, "swept feeds", "feeds", summary.Feeds, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}
