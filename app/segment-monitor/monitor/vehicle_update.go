package monitor

import (
	"fmt"
)

// VehicleStopStatus describes the relationship a vehicle update reports between
// the vehicle and its stop
type VehicleStopStatus int

const (
	Unknown VehicleStopStatus = iota
	// StoppedAt indicates the vehicle is at the stop
	StoppedAt
	// InTransitTo indicates the vehicle is moving toward the stop
	InTransitTo
	// Stale indicates the feed marked the record as no longer monitored, its
	// position content is unreliable
	Stale
)

// String - Stringer interface for VehicleStopStatus
func (s VehicleStopStatus) String() string {
	switch s {
	case StoppedAt:
		return "STOPPED_AT"
	case InTransitTo:
		return "IN_TRANSIT_TO"
	case Stale:
		return "STALE"
	}
	return "UNKNOWN"
}

// VehicleUpdate is one feed record for one vehicle: the stop the feed currently
// associates the vehicle with and when the position was recorded.
// Timestamp doubles as the per-vehicle sequence marker, updates for a vehicle
// are only accepted with strictly increasing timestamps.
type VehicleUpdate struct {
	VehicleId   string
	RouteId     string
	DirectionId string
	TripId      string
	StopId      string
	Timestamp   int64
	Status      VehicleStopStatus
}

// validate reports why an update cannot be tracked at all. Malformed updates are
// skipped with no effect on the vehicle's state.
func (u *VehicleUpdate) validate() error {
	if u.VehicleId == "" {
		return fmt.Errorf("update missing vehicle id")
	}
	if u.RouteId == "" {
		return fmt.Errorf("update for vehicle %s missing route id", u.VehicleId)
	}
	if u.StopId == "" {
		return fmt.Errorf("update for vehicle %s missing stop id", u.VehicleId)
	}
	if u.Timestamp <= 0 {
		return fmt.Errorf("update for vehicle %s missing timestamp", u.VehicleId)
	}
	return nil
}

func (u *VehicleUpdate) String() string {
	return fmt.Sprintf("VehicleUpdate{vehicle:%s route:%s direction:%s stop:%s at:%d status:%s}",
		u.VehicleId, u.RouteId, u.DirectionId, u.StopId, u.Timestamp, u.Status)
}
