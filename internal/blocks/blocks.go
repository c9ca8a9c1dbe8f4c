// Package blocks lets operators take a vehicle off the market for a range of days, and put it back.
package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/logger"
)

const maxReasonLen = 512

var ErrReasonTooLong = fmt.Errorf("reason is longer than %d bytes", maxReasonLen)

type Manager struct {
	repo garage.BlockRepo
}

func NewManager(repo garage.BlockRepo) Manager {
	return Manager{repo: repo}
}

// ClearSummary reports a company-wide clear. Vehicles that failed keep their blocks and are
// listed in Failures; the rest are cleared regardless.
type ClearSummary struct {
	Vehicles int               `json:"vehicles"`
	Cleared  int               `json:"cleared"`
	Removed  int               `json:"removed"`
	Failures map[string]string `json:"failures"`
}

// CreateBlock places a block over r. It fails with [garage.ErrConflict] if any day is taken by a
// confirmed booking or another block; external events may sit underneath.
func (m Manager) CreateBlock(ctx context.Context, vehicleID string, r garage.Range, reason string) (garage.ManualBlock, error) {
	if err := r.ValidateSpan(); err != nil {
		return garage.ManualBlock{}, err
	}

	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return garage.ManualBlock{}, ErrReasonTooLong
	}

	blk, err := m.repo.InsertBlock(ctx, garage.ManualBlock{VehicleID: vehicleID, Reason: reason, Range: r})
	if err != nil {
		return garage.ManualBlock{}, err
	}

	ctx = logger.Ctx(ctx, slog.String("vehicle_id", vehicleID), slog.String("block_id", blk.ID))
	slog.InfoContext(ctx, "block created", "range", r.String())
	return blk, nil
}

// RemoveBlock deletes the block. A block that's already gone is not an error.
func (m Manager) RemoveBlock(ctx context.Context, blockID string) error {
	return m.repo.DeleteBlock(ctx, blockID)
}

func (m Manager) ListBlocks(ctx context.Context, vehicleID string) ([]garage.ManualBlock, error) {
	if _, err := m.repo.Vehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	return m.repo.VehicleBlocks(ctx, vehicleID)
}

// ClearVehicleBlocks removes every block of the vehicle and returns how many were removed.
func (m Manager) ClearVehicleBlocks(ctx context.Context, vehicleID string) (int, error) {
	if _, err := m.repo.Vehicle(ctx, vehicleID); err != nil {
		return 0, err
	}

	n, err := m.repo.DeleteVehicleBlocks(ctx, vehicleID)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(logger.Ctx(ctx, slog.String("vehicle_id", vehicleID)), "cleared vehicle blocks", "removed", n)
	return n, nil
}

// ClearCompanyBlocks clears each vehicle of the company in its own transaction. A failing
// vehicle doesn't stop the others.
func (m Manager) ClearCompanyBlocks(ctx context.Context, companyID string) (ClearSummary, error) {
	ids, err := m.repo.CompanyVehicleIDs(ctx, companyID)
	if err != nil {
		return ClearSummary{}, err
	}

	ctx = logger.Ctx(ctx, slog.String("company_id", companyID))
	summary := ClearSummary{Vehicles: len(ids), Failures: map[string]string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			summary.Failures[id] = err.Error()
			continue
		}

		n, err := m.repo.DeleteVehicleBlocks(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "error clearing vehicle blocks", "vehicle_id", id, "err", err)
			summary.Failures[id] = err.Error()
			continue
		}
		summary.Cleared++
		summary.Removed += n
	}

	slog.InfoContext(ctx, "cleared company blocks",
		"vehicles", summary.Vehicles,
		"cleared", summary.Cleared,
		"removed", summary.Removed,
	)
	return summary, nil
}
