// Garage-Worker runs the scheduled sweep of external calendars on Temporal.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/garage/internal/database"
	"github.com/jdholdren/garage/internal/ingest"
	"github.com/jdholdren/garage/internal/logger"
	"github.com/jdholdren/garage/internal/sqlite"
	"github.com/jdholdren/garage/internal/sync"
	garworker "github.com/jdholdren/garage/internal/worker"
)

type config struct {
	Database          string `env:"DATABASE, required"`
	TemporalHostPort  string `env:"TEMPORAL_HOST_PORT, required"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE, default=default"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	FetchTimeout          time.Duration `env:"FETCH_TIMEOUT, default=10s"`
	RecurrenceHorizonDays int           `env:"RECURRENCE_HORIZON_DAYS, default=365"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL, default=15m"`
	SweepParallelism      int           `env:"SWEEP_PARALLELISM, default=4"`
}

func main() {
	// A .env is only there in development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("error loading .env: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.Setup(cfg.LoggerFormat)

	dbx, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	repo := sqlite.New(dbx)
	ingester := ingest.New(repo, sync.NewFetcher(cfg.FetchTimeout), ingest.Config{
		HorizonDays: cfg.RecurrenceHorizonDays,
		Parallelism: cfg.SweepParallelism,
	})

	// Retry until temporal is ready
	var temporalCli client.Client
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalHostPort,
			Namespace: cfg.TemporalNamespace,
			Logger:    slog.Default(),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		temporalCli = c

		return nil
	}); err != nil {
		log.Fatalln("Unable to create Temporal client:", err)
	}
	defer temporalCli.Close()

	if err := garworker.EnsureNamespace(ctx, temporalCli.WorkflowService(), cfg.TemporalNamespace); err != nil {
		log.Fatalf("error ensuring namespace: %s", err)
	}

	w, err := garworker.NewWorker(ctx, ingester, temporalCli, garworker.Config{
		SweepInterval:    cfg.SweepInterval,
		SweepParallelism: cfg.SweepParallelism,
	})
	if err != nil {
		log.Fatalf("error creating worker: %s", err)
	}

	if err := w.Run(worker.InterruptCh()); err != nil {
		slog.Error("error running worker", "error", err)
		os.Exit(1)
	}
}
