// Package segments provides the segment observation model and its persistence
package segments

import (
	"fmt"
	"time"
)

// SegmentObservation is the immutable record of one vehicle traversing from one stop
// to the immediately next stop it reported on its route.
// Once recorded it is never mutated or deleted, it is the historical fact the
// aggregated travel time statistics are derived from.
// primary key consists of DepartureTime, FromStopId, ToStopId, VehicleId
type SegmentObservation struct {
	RouteId     string `db:"route_id" json:"route_id"`
	DirectionId string `db:"direction_id" json:"direction_id"`
	VehicleId   string `db:"vehicle_id" json:"vehicle_id"`
	TripId      string `db:"trip_id" json:"trip_id"`
	//FromStopId is the stopId the vehicle moved from
	FromStopId string `db:"from_stop_id" json:"from_stop_id"`
	//ToStopId is the stopId the vehicle moved to
	ToStopId string `db:"to_stop_id" json:"to_stop_id"`
	//DepartureTime is the last time the vehicle was confirmed at or moving toward FromStopId
	DepartureTime time.Time `db:"departure_time" json:"departure_time"`
	//ArrivalTime is the time of the update that showed the vehicle had reached ToStopId
	ArrivalTime time.Time `db:"arrival_time" json:"arrival_time"`
	//TravelSeconds is ArrivalTime minus DepartureTime in whole seconds
	TravelSeconds int `db:"travel_seconds" json:"travel_seconds"`
	//DayOfWeek is derived from ArrivalTime, 0=Monday through 6=Sunday
	DayOfWeek int `db:"day_of_week" json:"day_of_week"`
	//HourOfDay is derived from ArrivalTime, 0 through 23
	HourOfDay int       `db:"hour_of_day" json:"hour_of_day"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MakeSegmentObservation builds a SegmentObservation for a completed traversal,
// deriving TravelSeconds, DayOfWeek and HourOfDay. Time bucketing fields are derived
// from the arrival in UTC.
func MakeSegmentObservation(routeId, directionId, vehicleId, tripId, fromStop, toStop string,
	departure, arrival time.Time) *SegmentObservation {

	arrivalUTC := arrival.UTC()
	return &SegmentObservation{
		RouteId:       routeId,
		DirectionId:   directionId,
		VehicleId:     vehicleId,
		TripId:        tripId,
		FromStopId:    fromStop,
		ToStopId:      toStop,
		DepartureTime: departure.UTC(),
		ArrivalTime:   arrivalUTC,
		TravelSeconds: int(arrival.Unix() - departure.Unix()),
		DayOfWeek:     WeekdayNumber(arrivalUTC),
		HourOfDay:     arrivalUTC.Hour(),
	}
}

// Validate reports why an observation may not enter the historical record.
// minSeconds and maxSeconds are the configured plausibility bounds for TravelSeconds.
func (o *SegmentObservation) Validate(minSeconds int, maxSeconds int) error {
	if o.RouteId == "" {
		return fmt.Errorf("observation missing route id")
	}
	if o.FromStopId == "" || o.ToStopId == "" {
		return fmt.Errorf("observation missing stop id")
	}
	if o.FromStopId == o.ToStopId {
		return fmt.Errorf("observation from and to stop are both %s", o.FromStopId)
	}
	if !o.DepartureTime.Before(o.ArrivalTime) {
		return fmt.Errorf("observation departure %v not before arrival %v", o.DepartureTime, o.ArrivalTime)
	}
	if o.TravelSeconds < minSeconds || o.TravelSeconds > maxSeconds {
		return fmt.Errorf("observation travel time %d outside bounds [%d, %d]",
			o.TravelSeconds, minSeconds, maxSeconds)
	}
	return nil
}

func (o *SegmentObservation) String() string {
	return fmt.Sprintf("SegmentObservation{vehicle:%s route:%s %s->%s took:%ds arrived:%s}",
		o.VehicleId, o.RouteId, o.FromStopId, o.ToStopId, o.TravelSeconds,
		o.ArrivalTime.Format(time.RFC3339))
}

// ObservationBatch wraps the segment observations produced from one feed poll,
// used as the message payload between monitor and aggregator
type ObservationBatch struct {
	Observations []*SegmentObservation `json:"observations"`
}

// WeekdayNumber returns the day of week for t numbered 0=Monday through 6=Sunday.
func WeekdayNumber(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
