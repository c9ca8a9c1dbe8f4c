package garage

import "time"

type (
	// Vehicle is owned by the marketplace; only the fields needed here are mirrored.
	Vehicle struct {
		ID        string    `db:"id"`
		CompanyID string    `db:"company_id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	// Booking is a rental reservation. Only confirmed bookings take part in classification.
	Booking struct {
		ID        string        `db:"id"`
		VehicleID string        `db:"vehicle_id"`
		Status    BookingStatus `db:"status"`
		CreatedAt time.Time     `db:"created_at"`
		Range
	}

	// ManualBlock is an operator-placed hold on a vehicle, e.g. for maintenance.
	ManualBlock struct {
		ID        string    `db:"id"`
		VehicleID string    `db:"vehicle_id"`
		Reason    string    `db:"reason"`
		CreatedAt time.Time `db:"created_at"`
		Range
	}

	// FeedToken gates the public calendar export of a vehicle.
	FeedToken struct {
		VehicleID string    `db:"vehicle_id"`
		Token     string    `db:"token"`
		IssuedAt  time.Time `db:"issued_at"`
	}
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Validate checks the range, which can't be longer than [MaxSpanDays].
func (b Booking) Validate() error {
	return b.ValidateSpan()
}

func (b ManualBlock) Validate() error {
	return b.ValidateSpan()
}

func (b Booking) Interval() Interval {
	return Interval{Kind: SourceBooking, SourceID: b.ID, VehicleID: b.VehicleID, Range: b.Range}
}

func (b ManualBlock) Interval() Interval {
	return Interval{Kind: SourceManualBlock, SourceID: b.ID, VehicleID: b.VehicleID, Range: b.Range}
}
