package garage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rng(start, end string) Range {
	return Range{Start: MustDate(start), End: MustDate(end)}
}

func TestClassify(t *testing.T) {
	var (
		booking  = Interval{Kind: SourceBooking, SourceID: "b", Range: rng("2025-06-10", "2025-06-12")}
		block    = Interval{Kind: SourceManualBlock, SourceID: "m", Range: rng("2025-06-01", "2025-06-15")}
		external = Interval{Kind: SourceExternal, SourceID: "e", Range: rng("2025-06-05", "2025-06-11")}
	)

	tests := []struct {
		name      string
		day       string
		intervals []Interval
		want      DateStatus
	}{
		{name: "nothing", day: "2025-06-03", want: StatusAvailable},
		{name: "block only", day: "2025-06-03", intervals: []Interval{block}, want: StatusBlockedManual},
		{name: "external outranks block", day: "2025-06-06", intervals: []Interval{block, external}, want: StatusBookedExternal},
		{name: "booking outranks everything", day: "2025-06-11", intervals: []Interval{block, external, booking}, want: StatusBookedConfirmed},
		{name: "order of intervals is irrelevant", day: "2025-06-11", intervals: []Interval{booking, external, block}, want: StatusBookedConfirmed},
		{name: "inclusive end", day: "2025-06-12", intervals: []Interval{booking}, want: StatusBookedConfirmed},
		{name: "inclusive start", day: "2025-06-10", intervals: []Interval{booking}, want: StatusBookedConfirmed},
		{name: "day after", day: "2025-06-13", intervals: []Interval{booking}, want: StatusAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(MustDate(tt.day), tt.intervals))
		})
	}
}

func TestClassify_Pure(t *testing.T) {
	intervals := []Interval{
		{Kind: SourceExternal, Range: rng("2025-01-01", "2025-01-31")},
		{Kind: SourceManualBlock, Range: rng("2025-01-15", "2025-02-15")},
	}

	for d := range rng("2024-12-25", "2025-02-20").Days() {
		assert.Equal(t, Classify(d, intervals), Classify(d, intervals), d.String())
	}
}

func TestRangeAvailable(t *testing.T) {
	intervals := []Interval{{Kind: SourceManualBlock, Range: rng("2025-06-01", "2025-06-05")}}

	assert.False(t, RangeAvailable(rng("2025-06-04", "2025-06-10"), intervals))
	assert.True(t, RangeAvailable(rng("2025-06-06", "2025-06-10"), intervals))
	assert.True(t, RangeAvailable(rng("2025-05-20", "2025-05-31"), intervals))
}
