package monitor

import (
	"log"
	"time"

	"github.com/metromind/metromind/business/data/routes"
	"github.com/metromind/metromind/business/data/segments"
)

// trackOutcome describes what a vehicleTracker did with one update, used for
// logging and metrics by the worker that owns the tracker
type trackOutcome int

const (
	// outcomeStaleMarker update's timestamp was not strictly greater than the stored one
	outcomeStaleMarker trackOutcome = iota
	// outcomeStaleStatus feed flagged the record unreliable, nothing tracked from it
	outcomeStaleStatus
	// outcomeStarted first sighting of the vehicle, state created
	outcomeStarted
	// outcomeHeartbeat same stop reported again, last seen refreshed
	outcomeHeartbeat
	// outcomeRouteChange vehicle switched route, tracking restarted on the new route
	outcomeRouteChange
	// outcomeBackward reported stop is behind the tracked one, continuity reset
	outcomeBackward
	// outcomeGap more than one stop was skipped, state advanced with no observation
	outcomeGap
	// outcomeRejected traversal completed but its duration failed the sanity bounds
	outcomeRejected
	// outcomeAdvanced traversal completed and an observation was produced
	outcomeAdvanced
)

// vehicleTracker is the per-vehicle state machine that turns a vehicle's stream
// of position updates into segments.SegmentObservation records.
// A tracker is only ever touched by the single worker goroutine that owns it.
type vehicleTracker struct {
	id          string
	routeId     string
	directionId string
	tripId      string
	// stopId is the stop the vehicle is currently associated with, empty before
	// the first accepted update
	stopId string
	// stopSince is the timestamp of the update that first associated the vehicle
	// with stopId, the departure basis for the next traversal
	stopSince     int64
	lastTimestamp int64

	minSegmentSeconds int
	maxSegmentSeconds int
}

func makeVehicleTracker(id string, minSegmentSeconds int, maxSegmentSeconds int) *vehicleTracker {
	return &vehicleTracker{
		id:                id,
		minSegmentSeconds: minSegmentSeconds,
		maxSegmentSeconds: maxSegmentSeconds,
	}
}

// startAt resets tracking to a fresh AT_STOP state taken from update
func (vt *vehicleTracker) startAt(update *VehicleUpdate) {
	vt.routeId = update.RouteId
	vt.directionId = update.DirectionId
	vt.tripId = update.TripId
	vt.stopId = update.StopId
	vt.stopSince = update.Timestamp
	vt.lastTimestamp = update.Timestamp
}

// processUpdate applies one update to the state machine, returning the
// observation produced if the vehicle completed an adjacent stop traversal.
// Updates whose timestamp does not strictly advance never mutate state.
func (vt *vehicleTracker) processUpdate(log *log.Logger,
	update *VehicleUpdate,
	stopSequences *routes.StopSequences) (*segments.SegmentObservation, trackOutcome) {

	if update.Timestamp <= vt.lastTimestamp {
		return nil, outcomeStaleMarker
	}

	if update.Status == Stale {
		//advance the marker so a replay of the stale record is not reprocessed,
		//but trust nothing else in it
		vt.lastTimestamp = update.Timestamp
		return nil, outcomeStaleStatus
	}

	if vt.stopId == "" {
		vt.startAt(update)
		return nil, outcomeStarted
	}

	if update.RouteId != vt.routeId || update.DirectionId != vt.directionId {
		//no observation may span two routes
		vt.startAt(update)
		return nil, outcomeRouteChange
	}

	if update.StopId == vt.stopId {
		//heartbeat: the departure basis stays at the time the vehicle first
		//became associated with this stop
		vt.lastTimestamp = update.Timestamp
		vt.tripId = update.TripId
		return nil, outcomeHeartbeat
	}

	steps, known := stopSequences.StopsAhead(vt.routeId, vt.directionId, vt.stopId, update.StopId)
	if known && steps <= 0 {
		log.Printf("vehicle %s on route %s moved backwards from stop %s to %s, resetting tracking",
			vt.id, vt.routeId, vt.stopId, update.StopId)
		vt.startAt(update)
		return nil, outcomeBackward
	}
	if known && steps > 1 {
		log.Printf("vehicle %s on route %s skipped %d stops between %s and %s, span not recorded",
			vt.id, vt.routeId, steps-1, vt.stopId, update.StopId)
		vt.startAt(update)
		return nil, outcomeGap
	}

	observation := segments.MakeSegmentObservation(
		vt.routeId, vt.directionId, vt.id, vt.tripId,
		vt.stopId, update.StopId,
		time.Unix(vt.stopSince, 0), time.Unix(update.Timestamp, 0))

	//always advance, a rejected duration must not stall the state machine
	vt.startAt(update)

	if err := observation.Validate(vt.minSegmentSeconds, vt.maxSegmentSeconds); err != nil {
		log.Printf("discarding implausible observation for vehicle %s: %v", vt.id, err)
		return nil, outcomeRejected
	}
	return observation, outcomeAdvanced
}
