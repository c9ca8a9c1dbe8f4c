// Package availability answers whether a vehicle can be booked on a day or over a range, and
// gives the booking side a way to commit a booking only while that is still true.
package availability

import (
	"context"
	"iter"

	"github.com/jdholdren/garage/internal/garage"
)

// Classifier reads the interval store fresh on every call. Nothing is cached between calls.
type Classifier struct {
	repo garage.IntervalRepo
}

func NewClassifier(repo garage.IntervalRepo) Classifier {
	return Classifier{repo: repo}
}

// Classify returns the status of a single day.
func (c Classifier) Classify(ctx context.Context, vehicleID string, d garage.Date) (garage.DateStatus, error) {
	ivs, err := c.load(ctx, vehicleID, garage.Range{Start: d, End: d})
	if err != nil {
		return "", err
	}

	return garage.Classify(d, ivs), nil
}

// ClassifyRange loads the intervals over r once and yields every day of r with its status.
//
// The sequence is built over that one snapshot, so ranging over it again yields the same days
// and statuses without touching the store.
func (c Classifier) ClassifyRange(ctx context.Context, vehicleID string, r garage.Range) (iter.Seq2[garage.Date, garage.DateStatus], error) {
	if err := r.ValidateSpan(); err != nil {
		return nil, err
	}

	ivs, err := c.load(ctx, vehicleID, r)
	if err != nil {
		return nil, err
	}

	return func(yield func(garage.Date, garage.DateStatus) bool) {
		for d := range r.Days() {
			if !yield(d, garage.Classify(d, ivs)) {
				return
			}
		}
	}, nil
}

// IsRangeAvailable is true iff every day of r is available. It's only a pre-check: use
// CommitBooking to actually take the range.
func (c Classifier) IsRangeAvailable(ctx context.Context, vehicleID string, r garage.Range) (bool, error) {
	if err := r.ValidateSpan(); err != nil {
		return false, err
	}

	ivs, err := c.load(ctx, vehicleID, r)
	if err != nil {
		return false, err
	}

	return garage.RangeAvailable(r, ivs), nil
}

// CommitBooking confirms a booking iff its range is still available, re-checking inside the
// store's write transaction.
func (c Classifier) CommitBooking(ctx context.Context, b garage.Booking) (garage.Booking, error) {
	if err := b.Validate(); err != nil {
		return garage.Booking{}, err
	}

	return c.repo.CommitBooking(ctx, b)
}

// Unknown vehicles are an error rather than "everything is available".
func (c Classifier) load(ctx context.Context, vehicleID string, r garage.Range) ([]garage.Interval, error) {
	if _, err := c.repo.Vehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	return c.repo.Intervals(ctx, vehicleID, r)
}
