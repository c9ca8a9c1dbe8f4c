package api

import (
	"net/http"
	"time"

	goaway "github.com/TwiN/go-away"
	"github.com/gorilla/mux"

	garerrs "github.com/jdholdren/garage/internal/errors"
	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/serverutil"
	"github.com/jdholdren/garage/internal/sync"
)

type postFeedReq struct {
	URL  string `json:"url" validate:"required,url,max=2048"`
	Name string `json:"name" validate:"max=128"`
}

func (f postFeedReq) Validate() error {
	if err := serverutil.ValidateStruct(f); err != nil {
		return err
	}
	if goaway.IsProfane(f.Name) {
		return garerrs.E("profanity detected in name", http.StatusUnprocessableEntity)
	}

	return nil
}

// The URL is served redacted; credentials and the query string are never echoed back.
type feedResp struct {
	ID           string     `json:"id"`
	VehicleID    string     `json:"vehicle_id"`
	URL          string     `json:"url"`
	Name         string     `json:"name"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toFeedResp(f garage.Feed) feedResp {
	return feedResp{
		ID:           f.ID,
		VehicleID:    f.VehicleID,
		URL:          sync.RedactURL(f.URL),
		Name:         f.Name,
		LastSyncedAt: f.LastSyncedAt,
		CreatedAt:    f.CreatedAt,
	}
}

type postFeedResp struct {
	Feed feedResp          `json:"feed"`
	Sync garage.SyncResult `json:"sync"`
}

// Registers a feed and syncs it once before responding.
func (s Server) postFeed(w http.ResponseWriter, r *http.Request) error {
	vehicleID := mux.Vars(r)["vehicleID"]
	body, err := serverutil.DecodeValid[postFeedReq](r.Body)
	if err != nil {
		return err
	}

	feed, res, err := s.ingest.RegisterFeed(r.Context(), vehicleID, body.URL, body.Name)
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, postFeedResp{Feed: toFeedResp(feed), Sync: res})
}

type feedsResp struct {
	Feeds []feedResp `json:"feeds"`
}

func (s Server) getFeeds(w http.ResponseWriter, r *http.Request) error {
	feeds, err := s.ingest.ListFeeds(r.Context(), mux.Vars(r)["vehicleID"])
	if err != nil {
		return serviceErr(err)
	}

	resp := feedsResp{Feeds: make([]feedResp, 0, len(feeds))}
	for _, f := range feeds {
		resp.Feeds = append(resp.Feeds, toFeedResp(f))
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s Server) deleteFeed(w http.ResponseWriter, r *http.Request) error {
	if err := s.ingest.DeleteFeed(r.Context(), mux.Vars(r)["feedID"]); err != nil {
		return serviceErr(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s Server) postSync(w http.ResponseWriter, r *http.Request) error {
	res, err := s.ingest.Sync(r.Context(), mux.Vars(r)["feedID"])
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, res)
}
