package services

import (
	domain "github.com/furnitune/api/internal/domain"
)

var progressStageByStatus = map[string]domain.ProgressStage{
	"":                 domain.ProgressProcessing,
	"pending":          domain.ProgressProcessing,
	"processing":       domain.ProgressProcessing,
	"prepare":          domain.ProgressPreparing,
	"preparing":        domain.ProgressPreparing,
	"packaging":        domain.ProgressPreparing,
	"for_packaging":    domain.ProgressPreparing,
	"to_ship":          domain.ProgressToShip,
	"shipping":         domain.ProgressToShip,
	"ready_to_ship":    domain.ProgressToShip,
	"shipped":          domain.ProgressToShip,
	"in_transit":       domain.ProgressToShip,
	"to_receive":       domain.ProgressToReceive,
	"out_for_delivery": domain.ProgressToReceive,
	"delivered":        domain.ProgressToReceive,
	"to_rate":          domain.ProgressToRate,
	"completed":        domain.ProgressToRate,
	"done":             domain.ProgressToRate,
}

// ProgressStageFor maps any fulfillment or legacy status string to a progress stage.
// Unrecognised values map to processing.
func ProgressStageFor(status string) domain.ProgressStage {
	if stage, ok := progressStageByStatus[domain.NormalizeStatusKey(status)]; ok {
		return stage
	}
	return domain.ProgressProcessing
}

// FurthestProgressStage returns the furthest-along stage among the given statuses.
func FurthestProgressStage(statuses ...string) domain.ProgressStage {
	best := domain.ProgressProcessing
	for _, status := range statuses {
		if stage := ProgressStageFor(status); stage.Rank() > best.Rank() {
			best = stage
		}
	}
	return best
}
