package monitor

import (
	"io"
	logger "log"
	"testing"

	"github.com/matryer/is"

	"github.com/metromind/metromind/business/data/routes"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, "", 0)
}

func testUpdate(stopId string, timestamp int64) *VehicleUpdate {
	return &VehicleUpdate{
		VehicleId:   "5678",
		RouteId:     "M5",
		DirectionId: "0",
		TripId:      "trip1",
		StopId:      stopId,
		Timestamp:   timestamp,
		Status:      InTransitTo,
	}
}

func testSequences() *routes.StopSequences {
	sequences := routes.MakeStopSequences()
	sequences.AddSequence("M5", "0", []string{"S1", "S2", "S3", "S4"})
	return sequences
}

func TestVehicleTracker_adjacentProgression(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	observation, outcome := tracker.processUpdate(log, testUpdate("S1", 1000), sequences)
	is.Equal(outcome, outcomeStarted)
	is.Equal(observation, nil)

	observation, outcome = tracker.processUpdate(log, testUpdate("S2", 1095), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.True(observation != nil)
	is.Equal(observation.FromStopId, "S1")
	is.Equal(observation.ToStopId, "S2")
	is.Equal(observation.TravelSeconds, 95)
	is.Equal(observation.RouteId, "M5")
	is.Equal(observation.VehicleId, "5678")

	observation, outcome = tracker.processUpdate(log, testUpdate("S3", 1215), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.True(observation != nil)
	is.Equal(observation.FromStopId, "S2")
	is.Equal(observation.ToStopId, "S3")
	is.Equal(observation.TravelSeconds, 120)
}

func TestVehicleTracker_heartbeatKeepsDepartureBasis(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	_, outcome := tracker.processUpdate(log, testUpdate("S1", 1000), sequences)
	is.Equal(outcome, outcomeStarted)

	// same stop reported twice more, the departure basis must stay at 1000
	_, outcome = tracker.processUpdate(log, testUpdate("S1", 1030), sequences)
	is.Equal(outcome, outcomeHeartbeat)
	_, outcome = tracker.processUpdate(log, testUpdate("S1", 1060), sequences)
	is.Equal(outcome, outcomeHeartbeat)

	observation, outcome := tracker.processUpdate(log, testUpdate("S2", 1095), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.TravelSeconds, 95)
}

func TestVehicleTracker_staleTimestampNeverMutates(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	// duplicate and regressed timestamps are discarded outright
	_, outcome := tracker.processUpdate(log, testUpdate("S2", 1000), sequences)
	is.Equal(outcome, outcomeStaleMarker)
	_, outcome = tracker.processUpdate(log, testUpdate("S2", 900), sequences)
	is.Equal(outcome, outcomeStaleMarker)

	// the fresh update still produces the observation from the original basis
	observation, outcome := tracker.processUpdate(log, testUpdate("S2", 1095), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.TravelSeconds, 95)
}

func TestVehicleTracker_staleStatusAdvancesMarkerOnly(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	stale := testUpdate("S2", 1050)
	stale.Status = Stale
	_, outcome := tracker.processUpdate(log, stale, sequences)
	is.Equal(outcome, outcomeStaleStatus)

	// a replay of the stale record's timestamp is now discarded
	_, outcome = tracker.processUpdate(log, testUpdate("S2", 1050), sequences)
	is.Equal(outcome, outcomeStaleMarker)

	// tracking picks up from the original stop association
	observation, outcome := tracker.processUpdate(log, testUpdate("S2", 1095), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.FromStopId, "S1")
	is.Equal(observation.TravelSeconds, 95)
}

func TestVehicleTracker_skippedStopProducesNoObservation(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	observation, outcome := tracker.processUpdate(log, testUpdate("S3", 1200), sequences)
	is.Equal(outcome, outcomeGap)
	is.Equal(observation, nil)

	// tracking continues from the stop after the gap
	observation, outcome = tracker.processUpdate(log, testUpdate("S4", 1300), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.FromStopId, "S3")
	is.Equal(observation.ToStopId, "S4")
	is.Equal(observation.TravelSeconds, 100)
}

func TestVehicleTracker_backwardMovementResets(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S3", 1000), sequences)

	observation, outcome := tracker.processUpdate(log, testUpdate("S1", 1100), sequences)
	is.Equal(outcome, outcomeBackward)
	is.Equal(observation, nil)

	observation, outcome = tracker.processUpdate(log, testUpdate("S2", 1200), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.FromStopId, "S1")
}

func TestVehicleTracker_routeChangeResets(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	change := testUpdate("S2", 1095)
	change.RouteId = "M6"
	observation, outcome := tracker.processUpdate(log, change, sequences)
	is.Equal(outcome, outcomeRouteChange)
	is.Equal(observation, nil)
}

func TestVehicleTracker_directionChangeResets(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	change := testUpdate("S2", 1095)
	change.DirectionId = "1"
	observation, outcome := tracker.processUpdate(log, change, sequences)
	is.Equal(outcome, outcomeRouteChange)
	is.Equal(observation, nil)
}

func TestVehicleTracker_durationBoundsRejectButAdvance(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	sequences := testSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	// 5 seconds is below the 10 second minimum
	observation, outcome := tracker.processUpdate(log, testUpdate("S2", 1005), sequences)
	is.Equal(outcome, outcomeRejected)
	is.Equal(observation, nil)

	// state advanced anyway, the next traversal starts from S2
	observation, outcome = tracker.processUpdate(log, testUpdate("S3", 1105), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.FromStopId, "S2")

	// a traversal over the 7200 second maximum is also rejected
	observation, outcome = tracker.processUpdate(log, testUpdate("S4", 1105+8000), sequences)
	is.Equal(outcome, outcomeRejected)
	is.Equal(observation, nil)
}

func TestVehicleTracker_unknownRouteTreatsChangeAsAdjacent(t *testing.T) {
	is := is.New(t)
	log := testLogger()
	// empty catalog: no evidence against any stop change
	sequences := routes.MakeStopSequences()
	tracker := makeVehicleTracker("5678", 10, 7200)

	tracker.processUpdate(log, testUpdate("S1", 1000), sequences)

	observation, outcome := tracker.processUpdate(log, testUpdate("S3", 1100), sequences)
	is.Equal(outcome, outcomeAdvanced)
	is.Equal(observation.FromStopId, "S1")
	is.Equal(observation.ToStopId, "S3")
}
