package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/serverutil"
)

// Serves the public feed of a vehicle. Whatever the reason the feed can't be served to this
// caller, the response is the same 404.
func (s Server) getCalendar(w http.ResponseWriter, r *http.Request) error {
	var (
		vars      = mux.Vars(r)
		vehicleID = vars["vehicleID"]
		token     = strings.TrimSuffix(vars["token"], ".ics")
	)

	doc, err := s.export.Export(r.Context(), vehicleID, token)
	if errors.Is(err, garage.ErrNotFound) {
		return errNotFound
	}
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set("Content-Type", "text/calendar; charset=utf-8")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(doc.Body)
	return err
}

type feedTokenResp struct {
	VehicleID string    `json:"vehicle_id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Issues a new feed token for the vehicle, revoking the previous one.
func (s Server) postFeedToken(w http.ResponseWriter, r *http.Request) error {
	tok, err := s.tokens.Issue(r.Context(), mux.Vars(r)["vehicleID"])
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, feedTokenResp{
		VehicleID: tok.VehicleID,
		Token:     tok.Token,
		URL:       fmt.Sprintf("%s/calendar/%s/%s.ics", strings.TrimSuffix(s.publicBaseURL, "/"), tok.VehicleID, tok.Token),
		IssuedAt:  tok.IssuedAt,
	})
}
