package api

import (
	"net/http"
	"time"

	goaway "github.com/TwiN/go-away"
	"github.com/gorilla/mux"

	garerrs "github.com/jdholdren/garage/internal/errors"
	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/serverutil"
)

type postBlockReq struct {
	StartDate garage.Date `json:"start_date"`
	EndDate   garage.Date `json:"end_date"`
	Reason    string      `json:"reason" validate:"max=512"`
}

func (b postBlockReq) Validate() error {
	if err := serverutil.ValidateStruct(b); err != nil {
		return err
	}
	if err := (garage.Range{Start: b.StartDate, End: b.EndDate}).ValidateSpan(); err != nil {
		return err
	}

	// Reasons end up in the published calendar.
	if goaway.IsProfane(b.Reason) {
		return garerrs.E("profanity detected in reason", http.StatusUnprocessableEntity)
	}

	return nil
}

type blockResp struct {
	ID        string      `json:"id"`
	VehicleID string      `json:"vehicle_id"`
	StartDate garage.Date `json:"start_date"`
	EndDate   garage.Date `json:"end_date"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func toBlockResp(b garage.ManualBlock) blockResp {
	return blockResp{
		ID:        b.ID,
		VehicleID: b.VehicleID,
		StartDate: b.Start,
		EndDate:   b.End,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
	}
}

func (s Server) postBlock(w http.ResponseWriter, r *http.Request) error {
	vehicleID := mux.Vars(r)["vehicleID"]
	body, err := serverutil.DecodeValid[postBlockReq](r.Body)
	if err != nil {
		return err
	}

	blk, err := s.blocks.CreateBlock(r.Context(), vehicleID, garage.Range{Start: body.StartDate, End: body.EndDate}, body.Reason)
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, toBlockResp(blk))
}

type blocksResp struct {
	Blocks []blockResp `json:"blocks"`
}

func (s Server) getBlocks(w http.ResponseWriter, r *http.Request) error {
	blks, err := s.blocks.ListBlocks(r.Context(), mux.Vars(r)["vehicleID"])
	if err != nil {
		return serviceErr(err)
	}

	resp := blocksResp{Blocks: make([]blockResp, 0, len(blks))}
	for _, b := range blks {
		resp.Blocks = append(resp.Blocks, toBlockResp(b))
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s Server) deleteBlock(w http.ResponseWriter, r *http.Request) error {
	if err := s.blocks.RemoveBlock(r.Context(), mux.Vars(r)["blockID"]); err != nil {
		return serviceErr(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

type clearVehicleResp struct {
	Removed int `json:"removed"`
}

func (s Server) deleteVehicleBlocks(w http.ResponseWriter, r *http.Request) error {
	n, err := s.blocks.ClearVehicleBlocks(r.Context(), mux.Vars(r)["vehicleID"])
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, clearVehicleResp{Removed: n})
}

func (s Server) deleteCompanyBlocks(w http.ResponseWriter, r *http.Request) error {
	summary, err := s.blocks.ClearCompanyBlocks(r.Context(), mux.Vars(r)["companyID"])
	if err != nil {
		return serviceErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, summary)
}
