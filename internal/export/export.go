// Package export renders a vehicle's bookings, blocks and external events as an iCal feed for
// third-party calendar clients.
package export

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/jdholdren/garage/internal/garage"
)

const productID = "-//jdholdren//garage//EN"

// Verifier checks a feed token against the vehicle's current one.
type Verifier interface {
	Verify(ctx context.Context, vehicleID, token string) error
}

// Document is a rendered feed.
type Document struct {
	VehicleName string
	// Suggested download name, derived from the vehicle name.
	Filename string
	Body     []byte
}

type Service struct {
	repo     garage.ExportRepo
	verifier Verifier
}

func New(repo garage.ExportRepo, verifier Verifier) Service {
	return Service{repo: repo, verifier: verifier}
}

// Export renders the feed of the vehicle if token is its current feed token. Both an unknown
// vehicle and a bad token are reported as [garage.ErrNotFound], so callers can't tell which.
//
// With no writes in between, two exports are byte for byte identical.
func (s Service) Export(ctx context.Context, vehicleID, token string) (Document, error) {
	if err := s.verifier.Verify(ctx, vehicleID, token); err != nil {
		if errors.Is(err, garage.ErrUnauthorized) || errors.Is(err, garage.ErrNotFound) {
			return Document{}, fmt.Errorf("calendar: %w", garage.ErrNotFound)
		}
		return Document{}, err
	}

	v, err := s.repo.Vehicle(ctx, vehicleID)
	if errors.Is(err, garage.ErrNotFound) {
		return Document{}, fmt.Errorf("calendar: %w", garage.ErrNotFound)
	}
	if err != nil {
		return Document{}, err
	}

	entries, err := s.entries(ctx, vehicleID)
	if err != nil {
		return Document{}, err
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(v.Name)
	cal.SetXPublishedTTL("PT15M")

	for _, e := range entries {
		ev := cal.AddEvent(e.uid)
		ev.SetDtStampTime(e.stamp)
		ev.SetAllDayStartAt(e.rng.Start.Time())
		// DTEND is exclusive for all-day events.
		ev.SetAllDayEndAt(e.rng.End.AddDays(1).Time())
		ev.SetSummary(e.summary)
		ev.SetTimeTransparency(ical.TransparencyOpaque)
	}

	return Document{
		VehicleName: v.Name,
		Filename:    slug(v.Name) + ".ics",
		Body:        []byte(cal.Serialize()),
	}, nil
}

// One event of the feed.
type entry struct {
	uid     string
	summary string
	stamp   time.Time
	rng     garage.Range
}

func (s Service) entries(ctx context.Context, vehicleID string) ([]entry, error) {
	bookings, err := s.repo.VehicleBookings(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.repo.VehicleBlocks(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.VehicleExternalEvents(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(bookings)+len(blocks)+len(events))
	for _, b := range bookings {
		entries = append(entries, entry{
			uid:     uid(garage.SourceBooking, b.ID),
			summary: "Booked",
			stamp:   b.CreatedAt,
			rng:     b.Range,
		})
	}
	for _, b := range blocks {
		summary := "Blocked"
		if b.Reason != "" {
			summary += ": " + b.Reason
		}
		entries = append(entries, entry{
			uid:     uid(garage.SourceManualBlock, b.ID),
			summary: summary,
			stamp:   b.CreatedAt,
			rng:     b.Range,
		})
	}
	for _, e := range events {
		summary := "Booked elsewhere"
		if e.Summary != "" {
			summary += ": " + e.Summary
		}
		entries = append(entries, entry{
			uid:     uid(garage.SourceExternal, e.ID),
			summary: summary,
			stamp:   e.UpdatedAt,
			rng:     e.Range,
		})
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Or(a.rng.Start.Compare(b.rng.Start), strings.Compare(a.uid, b.uid))
	})
	return entries, nil
}

// The UID only depends on what the event mirrors, so clients recognise it on every fetch.
func uid(kind garage.SourceKind, id string) string {
	return fmt.Sprintf("%s-%s@garage", kind, id)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "calendar"
	}
	return s
}
