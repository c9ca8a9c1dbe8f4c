// Garage-API serves vehicle availability: the operator API, the booking side's availability
// checks, and the public calendar feed of each vehicle.
//
// Unless disabled, it also sweeps the registered external calendars on a schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/garage/internal/api"
	"github.com/jdholdren/garage/internal/availability"
	"github.com/jdholdren/garage/internal/blocks"
	"github.com/jdholdren/garage/internal/database"
	"github.com/jdholdren/garage/internal/export"
	"github.com/jdholdren/garage/internal/feedtoken"
	"github.com/jdholdren/garage/internal/ingest"
	"github.com/jdholdren/garage/internal/logger"
	"github.com/jdholdren/garage/internal/sqlite"
	"github.com/jdholdren/garage/internal/sync"
)

type config struct {
	Database string `env:"DATABASE, required"`

	Port           int    `env:"PORT, default=4444"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL, default=http://localhost:4444"`
	HTTPSCookies   bool   `env:"HTTPS_COOKIES, default=false"`
	CookieHashKey  string `env:"COOKIE_HASH_KEY"`
	CookieBlockKey string `env:"COOKIE_BLOCK_KEY"`
	CorsHeader     string `env:"CORS_HEADER, default=http://localhost:5173"`
	DebugEndpoints bool   `env:"DEBUG_ENDPOINTS, default=false"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	FetchTimeout          time.Duration `env:"FETCH_TIMEOUT, default=10s"`
	RecurrenceHorizonDays int           `env:"RECURRENCE_HORIZON_DAYS, default=365"`

	// "off" leaves sweeping to the worker.
	SweepSchedule    string `env:"SWEEP_SCHEDULE, default=@every 15m"`
	SweepParallelism int    `env:"SWEEP_PARALLELISM, default=4"`
}

func main() {
	// A .env is only there in development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("error loading .env: %s", err)
	}

	ctx := context.Background()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.Setup(cfg.LoggerFormat)

	if err := runApp(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runApp(ctx context.Context, cfg config) error {
	dbx, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer dbx.Close()

	var (
		repo   = sqlite.New(dbx)
		tokens = feedtoken.NewAuthority(repo)
	)
	ingester := ingest.New(repo, sync.NewFetcher(cfg.FetchTimeout), ingest.Config{
		HorizonDays: cfg.RecurrenceHorizonDays,
		Parallelism: cfg.SweepParallelism,
	})

	s := api.NewServer(api.ServerConfig{
		Port:           cfg.Port,
		CookieHashKey:  []byte(cfg.CookieHashKey),
		CookieBlockKey: []byte(cfg.CookieBlockKey),
		HttpsCookies:   cfg.HTTPSCookies,
		CorsHeader:     cfg.CorsHeader,
		PublicBaseURL:  cfg.PublicBaseURL,
		DebugEndpoints: cfg.DebugEndpoints,
	}, api.Services{
		Classifier: availability.NewClassifier(repo),
		Blocks:     blocks.NewManager(repo),
		Ingest:     ingester,
		Export:     export.New(repo, tokens),
		Tokens:     tokens,
	})

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		slog.Info("listening", "port", cfg.Port)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	}, func(error) {
		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}
	})

	if cfg.SweepSchedule != "" && cfg.SweepSchedule != "off" {
		execute, interrupt, err := sweeper(ctx, cfg.SweepSchedule, ingester)
		if err != nil {
			return err
		}
		g.Add(execute, interrupt)
	}

	return g.Run()
}

// Runs the sweep on the cron schedule until interrupted, skipping a tick if the last sweep is
// still going.
func sweeper(ctx context.Context, schedule string, ingester *ingest.Service) (func() error, func(error), error) {
	sweepCtx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := ingester.Sweep(sweepCtx); err != nil {
			slog.ErrorContext(sweepCtx, "error sweeping feeds", "error", err)
		}
	}); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("error parsing sweep schedule %q: %s", schedule, err)
	}

	execute := func() error {
		slog.Info("sweeping feeds", "schedule", schedule)
		c.Run()
		return nil
	}
	interrupt := func(error) {
		cancel()
		// Waits for a running sweep to wrap up
		<-c.Stop().Done()
	}

	return execute, interrupt, nil
}
