package garage

import (
	"context"
	"time"
)

type (
	// VehicleRepo reads the marketplace's vehicles.
	VehicleRepo interface {
		Vehicle(ctx context.Context, id string) (Vehicle, error)
		CompanyVehicleIDs(ctx context.Context, companyID string) ([]string, error)
	}

	// IntervalRepo is the read side of the interval store used for classification.
	IntervalRepo interface {
		VehicleRepo
		// Intervals returns every interval of the vehicle that overlaps r.
		Intervals(ctx context.Context, vehicleID string, r Range) ([]Interval, error)
		// CommitBooking inserts a confirmed booking iff its whole range is still available.
		CommitBooking(ctx context.Context, b Booking) (Booking, error)
	}

	BlockRepo interface {
		VehicleRepo
		// InsertBlock inserts the block iff no confirmed booking or manual block overlaps it.
		InsertBlock(ctx context.Context, b ManualBlock) (ManualBlock, error)
		DeleteBlock(ctx context.Context, id string) error
		DeleteVehicleBlocks(ctx context.Context, vehicleID string) (int, error)
		VehicleBlocks(ctx context.Context, vehicleID string) ([]ManualBlock, error)
	}

	FeedRepo interface {
		VehicleRepo
		Feed(ctx context.Context, id string) (Feed, error)
		VehicleFeeds(ctx context.Context, vehicleID string) ([]Feed, error)
		AllFeedIDs(ctx context.Context) ([]string, error)
		InsertFeed(ctx context.Context, f Feed) (Feed, error)
		DeleteFeed(ctx context.Context, id string) error
		// ReconcileFeedEvents replaces the feed's stored events with fetched and stamps the
		// feed as synced, all in one transaction.
		ReconcileFeedEvents(ctx context.Context, feedID string, fetched []ExternalEvent, syncedAt time.Time) (SyncResult, error)
	}

	ExportRepo interface {
		VehicleRepo
		FeedToken(ctx context.Context, vehicleID string) (FeedToken, error)
		VehicleBookings(ctx context.Context, vehicleID string) ([]Booking, error)
		VehicleBlocks(ctx context.Context, vehicleID string) ([]ManualBlock, error)
		VehicleExternalEvents(ctx context.Context, vehicleID string) ([]ExternalEvent, error)
	}

	TokenRepo interface {
		VehicleRepo
		FeedToken(ctx context.Context, vehicleID string) (FeedToken, error)
		// PutFeedToken replaces any token of the vehicle.
		PutFeedToken(ctx context.Context, t FeedToken) error
	}

	// Repository is everything the sqlite store provides.
	Repository interface {
		IntervalRepo
		BlockRepo
		FeedRepo
		ExportRepo
		TokenRepo
	}
)
