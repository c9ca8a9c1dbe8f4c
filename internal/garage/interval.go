package garage

// SourceKind discriminates the kinds of interval that can make a day unbookable.
type SourceKind string

const (
	SourceBooking     SourceKind = "booking"
	SourceManualBlock SourceKind = "manual-block"
	SourceExternal    SourceKind = "external"
)

// DateStatus is the derived availability of one vehicle on one day. It is never stored.
type DateStatus string

const (
	StatusAvailable       DateStatus = "available"
	StatusBookedConfirmed DateStatus = "booked-confirmed"
	StatusBlockedManual   DateStatus = "blocked-manual"
	StatusBookedExternal  DateStatus = "booked-external"
)

// Interval is any of the three interval kinds, reduced to what classification needs.
type Interval struct {
	Kind      SourceKind `db:"kind"`
	SourceID  string     `db:"source_id"`
	VehicleID string     `db:"vehicle_id"`
	Range
}

// precedence is checked top to bottom; the first kind covering a day decides its status.
var precedence = []struct {
	kind   SourceKind
	status DateStatus
}{
	{kind: SourceBooking, status: StatusBookedConfirmed},
	{kind: SourceExternal, status: StatusBookedExternal},
	{kind: SourceManualBlock, status: StatusBlockedManual},
}

// Classify returns the status of day d given every interval of a single vehicle.
//
// Intervals that don't contain d are ignored, so callers may pass a superset.
func Classify(d Date, intervals []Interval) DateStatus {
	var covered [3]bool
	for _, iv := range intervals {
		if !iv.Contains(d) {
			continue
		}
		for i, p := range precedence {
			if p.kind == iv.Kind {
				covered[i] = true
			}
		}
	}

	for i, p := range precedence {
		if covered[i] {
			return p.status
		}
	}

	return StatusAvailable
}

// RangeAvailable reports whether every day of r classifies as available.
func RangeAvailable(r Range, intervals []Interval) bool {
	for d := range r.Days() {
		if Classify(d, intervals) != StatusAvailable {
			return false
		}
	}

	return true
}
