package api

import (
	"net/http"

	"github.com/gorilla/mux"

	garerrs "github.com/jdholdren/garage/internal/errors"
	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/serverutil"
)

// Reads the `start` and `end` query params into a range.
func queryRange(r *http.Request) (garage.Range, error) {
	q := r.URL.Query()

	var (
		details []garerrs.Detail
		rng     garage.Range
		err     error
	)
	if rng.Start, err = garage.ParseDate(q.Get("start")); err != nil {
		details = append(details, garerrs.Detail{Field: "start", Error: "must be a date as YYYY-MM-DD"})
	}
	if rng.End, err = garage.ParseDate(q.Get("end")); err != nil {
		details = append(details, garerrs.Detail{Field: "end", Error: "must be a date as YYYY-MM-DD"})
	}
	if len(details) > 0 {
		return garage.Range{}, garerrs.E("invalid date range", details, http.StatusBadRequest)
	}

	if err := rng.Validate(); err != nil {
		return garage.Range{}, garerrs.E(err, http.StatusBadRequest)
	}
	if rng.Len() > garage.MaxSpanDays {
		return garage.Range{}, garerrs.E("date range too long", http.StatusBadRequest)
	}

	return rng, nil
}

type dayStatus struct {
	Date   garage.Date       `json:"date"`
	Status garage.DateStatus `json:"status"`
}

type availabilityResp struct {
	VehicleID string      `json:"vehicle_id"`
	Days      []dayStatus `json:"days"`
}

func (s Server) getAvailability(w http.ResponseWriter, r *http.Request) error {
	vehicleID := mux.Vars(r)["vehicleID"]
	rng, err := queryRange(r)
	if err != nil {
		return err
	}

	statuses, err := s.classifier.ClassifyRange(r.Context(), vehicleID, rng)
	if err != nil {
		return serviceErr(err)
	}

	resp := availabilityResp{
		VehicleID: vehicleID,
		Days:      make([]dayStatus, 0, rng.Len()),
	}
	for d, status := range statuses {
		resp.Days = append(resp.Days, dayStatus{Date: d, Status: status})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type availabilityCheckResp struct {
	VehicleID string       `json:"vehicle_id"`
	Range     garage.Range `json:"range"`
	Available bool         `json:"available"`
}

func (s Server) getAvailabilityCheck(w http.ResponseWriter, r *http.Request) error {
	vehicleID := mux.Vars(r)["vehicleID"]
	rng, err := queryRange(r)
	if err != nil {
		return err
	}

	ok, err := s.classifier.IsRangeAvailable(r.Context(), vehicleID, rng)
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, availabilityCheckResp{
		VehicleID: vehicleID,
		Range:     rng,
		Available: ok,
	})
}

type commitBookingReq struct {
	BookingID string      `json:"booking_id" validate:"required,max=128"`
	StartDate garage.Date `json:"start_date"`
	EndDate   garage.Date `json:"end_date"`
}

func (c commitBookingReq) Validate() error {
	if err := serverutil.ValidateStruct(c); err != nil {
		return err
	}

	return garage.Range{Start: c.StartDate, End: c.EndDate}.ValidateSpan()
}

type bookingResp struct {
	ID        string      `json:"id"`
	VehicleID string      `json:"vehicle_id"`
	Status    string      `json:"status"`
	StartDate garage.Date `json:"start_date"`
	EndDate   garage.Date `json:"end_date"`
}

// Commits a confirmed booking as long as every day it covers is still available. A booking that
// lost the race comes back as a 409.
func (s Server) postCommitBooking(w http.ResponseWriter, r *http.Request) error {
	vehicleID := mux.Vars(r)["vehicleID"]
	body, err := serverutil.DecodeValid[commitBookingReq](r.Body)
	if err != nil {
		return err
	}

	booking, err := s.classifier.CommitBooking(r.Context(), garage.Booking{
		ID:        body.BookingID,
		VehicleID: vehicleID,
		Range:     garage.Range{Start: body.StartDate, End: body.EndDate},
	})
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, bookingResp{
		ID:        booking.ID,
		VehicleID: booking.VehicleID,
		Status:    string(booking.Status),
		StartDate: booking.Start,
		EndDate:   booking.End,
	})
}
