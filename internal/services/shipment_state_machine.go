package services

import (
	"slices"
	"strings"
	"time"

	domain "github.com/furnitune/api/internal/domain"
)

const shipmentMachineName = "shipment"

var shipmentTransitions = map[domain.ShipmentStatus][]domain.ShipmentStatus{
	domain.ShipmentStatusPending:        {domain.ShipmentStatusProcessing, domain.ShipmentStatusCancelled},
	domain.ShipmentStatusProcessing:     {domain.ShipmentStatusReadyToShip, domain.ShipmentStatusCancelled},
	domain.ShipmentStatusReadyToShip:    {domain.ShipmentStatusShipped, domain.ShipmentStatusCancelled},
	domain.ShipmentStatusShipped:        {domain.ShipmentStatusInTransit},
	domain.ShipmentStatusInTransit:      {domain.ShipmentStatusOutForDelivery},
	domain.ShipmentStatusOutForDelivery: {domain.ShipmentStatusDelivered},
	domain.ShipmentStatusDelivered:      {domain.ShipmentStatusReturned},
}

// CanTransitionShipment reports whether the table allows from -> to.
func CanTransitionShipment(from, to domain.ShipmentStatus) bool {
	return slices.Contains(shipmentTransitions[from], to)
}

// AllowedShipmentTransitions returns the statuses reachable from the given one.
func AllowedShipmentTransitions(from domain.ShipmentStatus) []domain.ShipmentStatus {
	return slices.Clone(shipmentTransitions[from])
}

// IsTerminalShipmentStatus reports whether no transitions leave the status.
func IsTerminalShipmentStatus(status domain.ShipmentStatus) bool {
	return len(shipmentTransitions[status]) == 0
}

// ApplyShipmentTransition validates the move and returns the updated shipment plus the event
// appended to its trail. On error the shipment is returned unchanged.
func ApplyShipmentTransition(shipment domain.Shipment, to domain.ShipmentStatus, note, actor string, at time.Time) (domain.Shipment, domain.ShipmentEvent, error) {
	from := shipment.Status
	if from == "" {
		from = domain.ShipmentStatusPending
	}
	if !CanTransitionShipment(from, to) {
		return shipment, domain.ShipmentEvent{}, domain.NewTransitionError(shipmentMachineName, string(from), string(to))
	}

	event := domain.ShipmentEvent{
		ShipmentID: shipment.ID,
		From:       from,
		To:         to,
		Note:       strings.TrimSpace(note),
		Actor:      strings.TrimSpace(actor),
		At:         at,
	}

	next := shipment
	next.Status = to
	next.UpdatedAt = at
	next.Events = append(slices.Clone(shipment.Events), event)
	return next, event, nil
}
