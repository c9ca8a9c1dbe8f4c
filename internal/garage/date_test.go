package garage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	got := DateOf(time.Date(2025, time.July, 1, 23, 30, 0, 0, loc))

	assert.Equal(t, "2025-07-01", got.String())
	assert.True(t, got.Equal(NewDate(2025, time.July, 1)))
}

func TestDate_Scan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2025-06-01"))
	assert.Equal(t, "2025-06-01", d.String())

	require.NoError(t, d.Scan([]byte("2025-06-02")))
	assert.Equal(t, "2025-06-02", d.String())

	require.NoError(t, d.Scan(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-06-03", d.String())

	assert.Error(t, d.Scan(42))
}

func TestDate_JSON(t *testing.T) {
	byts, err := json.Marshal(struct {
		D Date `json:"d"`
	}{D: MustDate("2025-06-01")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-06-01"}`, string(byts))

	var got struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2025-12-31"}`), &got))
	assert.Equal(t, "2025-12-31", got.D.String())

	assert.Error(t, json.Unmarshal([]byte(`{"d":"31/12/2025"}`), &got))
}

func TestRange(t *testing.T) {
	_, err := NewRange(MustDate("2025-06-05"), MustDate("2025-06-01"))
	assert.True(t, errors.Is(err, ErrInvalidRange))

	_, err = NewRange(Date{}, MustDate("2025-06-01"))
	assert.True(t, errors.Is(err, ErrInvalidRange))

	r, err := NewRange(MustDate("2025-06-01"), MustDate("2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	r = rng("2025-02-27", "2025-03-02")
	var days []string
	for d := range r.Days() {
		days = append(days, d.String())
	}
	assert.Equal(t, []string{"2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02"}, days)
	assert.Equal(t, 4, r.Len())

	assert.True(t, r.Overlaps(rng("2025-03-02", "2025-03-09")))
	assert.False(t, r.Overlaps(rng("2025-03-03", "2025-03-09")))

	// 2024 is a leap year, so this is exactly MaxSpanDays long.
	assert.NoError(t, rng("2024-01-01", "2024-12-31").ValidateSpan())
	assert.ErrorIs(t, rng("2024-01-01", "2025-01-01").ValidateSpan(), ErrInvalidRange)
	assert.ErrorIs(t, rng("2025-06-05", "2025-06-01").ValidateSpan(), ErrInvalidRange)
	assert.ErrorIs(t, Booking{Range: rng("2025-01-01", "2125-01-01")}.Validate(), ErrInvalidRange)
	assert.ErrorIs(t, ManualBlock{Range: rng("2025-01-01", "2125-01-01")}.Validate(), ErrInvalidRange)
}
