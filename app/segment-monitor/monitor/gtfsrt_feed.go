package monitor

import (
	"fmt"
	"log"
	"net/http"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/metromind/metromind/foundation/httpclient"
)

// getGtfsRtVehicleUpdates retrieves a GTFS-realtime VehiclePositions feed and
// converts each vehicle entity into a VehicleUpdate. Entities without a vehicle
// id or a stop id cannot be tracked and are skipped.
func getGtfsRtVehicleUpdates(log *log.Logger, client *http.Client, url string, now int64) ([]VehicleUpdate, error) {
	body, err := httpclient.GetBytes(client, url)
	if err != nil {
		return nil, err
	}

	feedMessage := gtfsrt.FeedMessage{}
	err = proto.Unmarshal(body, &feedMessage)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling FeedMessage: %w", err)
	}

	var updates []VehicleUpdate
	skipped := 0
	for _, entity := range feedMessage.Entity {
		vehicle := entity.Vehicle
		if vehicle == nil {
			continue
		}
		if vehicle.GetVehicle().GetId() == "" || vehicle.GetStopId() == "" {
			skipped++
			continue
		}

		timestamp := int64(vehicle.GetTimestamp())
		if timestamp == 0 {
			timestamp = now
		}

		trip := vehicle.GetTrip()
		updates = append(updates, VehicleUpdate{
			VehicleId:   vehicle.GetVehicle().GetId(),
			RouteId:     trip.GetRouteId(),
			DirectionId: fmt.Sprintf("%d", trip.GetDirectionId()),
			TripId:      trip.GetTripId(),
			StopId:      vehicle.GetStopId(),
			Timestamp:   timestamp,
			Status:      gtfsRtStopStatus(vehicle.CurrentStatus),
		})
	}
	if skipped > 0 {
		log.Printf("skipped %d gtfs-rt vehicle entities missing vehicle or stop id", skipped)
	}
	return updates, nil
}

// gtfsRtStopStatus converts the gtfs-rt stop status to VehicleStopStatus.
// IN_TRANSIT_TO and INCOMING_AT both mean the vehicle has not yet reached the
// stop it is associated with.
func gtfsRtStopStatus(status *gtfsrt.VehiclePosition_VehicleStopStatus) VehicleStopStatus {
	if status == nil {
		return InTransitTo
	}
	switch *status {
	case gtfsrt.VehiclePosition_STOPPED_AT:
		return StoppedAt
	case gtfsrt.VehiclePosition_IN_TRANSIT_TO, gtfsrt.VehiclePosition_INCOMING_AT:
		return InTransitTo
	}
	return Unknown
}
