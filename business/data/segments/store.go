package segments

import (
	"github.com/jmoiron/sqlx"

	"github.com/metromind/metromind/foundation/database"
)

/*
segment_observation table:

create table segment_observation
(
    route_id        text        not null,
    direction_id    text        not null default '',
    vehicle_id      text        not null,
    trip_id         text        not null default '',
    from_stop_id    text        not null,
    to_stop_id      text        not null,
    departure_time  timestamptz not null,
    arrival_time    timestamptz not null,
    travel_seconds  integer     not null,
    day_of_week     integer     not null,
    hour_of_day     integer     not null,
    created_at      timestamptz not null,
    primary key (departure_time, from_stop_id, to_stop_id, vehicle_id)
);
create index segment_observation_bucket_idx
    on segment_observation (route_id, from_stop_id, to_stop_id, day_of_week, hour_of_day);
*/

// RecordSegmentObservation appends observation to the segment_observation table.
// Appends are at-least-once, a duplicate row from a retried append only adds evidence
// and is harmless to downstream statistics.
// CreatedAt is the caller's responsibility, so the persisted row matches whatever
// payload the caller already sent elsewhere for the same observation.
func RecordSegmentObservation(db *sqlx.DB, observation *SegmentObservation) error {

	statementString := "insert into segment_observation " +
		"(route_id, " +
		"direction_id, " +
		"vehicle_id, " +
		"trip_id, " +
		"from_stop_id, " +
		"to_stop_id, " +
		"departure_time, " +
		"arrival_time, " +
		"travel_seconds, " +
		"day_of_week, " +
		"hour_of_day, " +
		"created_at) " +
		"values " +
		"(:route_id, " +
		":direction_id, " +
		":vehicle_id, " +
		":trip_id, " +
		":from_stop_id, " +
		":to_stop_id, " +
		":departure_time, " +
		":arrival_time, " +
		":travel_seconds, " +
		":day_of_week, " +
		":hour_of_day, " +
		":created_at)"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExec(statementString, observation)
	return err
}

// bucketQuery builds the filtered select for key. Coarse day types expand to
// the set of matching day_of_week values, and HourAny removes the hour filter.
func bucketQuery(key BucketKey) (string, map[string]interface{}) {
	statementString := "select * from segment_observation " +
		"where route_id = :route_id " +
		"and from_stop_id = :from_stop_id " +
		"and to_stop_id = :to_stop_id " +
		"and day_of_week in (:day_numbers) "
	sqlArgMap := map[string]interface{}{
		"route_id":     key.RouteId,
		"from_stop_id": key.FromStopId,
		"to_stop_id":   key.ToStopId,
		"day_numbers":  key.DayType.DayNumbers(),
	}
	if key.HourOfDay != HourAny {
		statementString += "and hour_of_day = :hour_of_day "
		sqlArgMap["hour_of_day"] = key.HourOfDay
	}
	statementString += "order by arrival_time"
	return statementString, sqlArgMap
}

// ScanBucket retrieves all observations filed under key, oldest first.
func ScanBucket(db *sqlx.DB, key BucketKey) ([]SegmentObservation, error) {

	statementString, sqlArgMap := bucketQuery(key)
	rows, err := database.PrepareNamedQueryRowsFromMap(statementString, db, sqlArgMap)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []SegmentObservation
	for rows.Next() {
		observation := SegmentObservation{}
		err = rows.StructScan(&observation)
		if err != nil {
			return nil, err
		}
		results = append(results, observation)
	}
	return results, rows.Err()
}

// ScanAll walks every stored observation oldest first, calling handler for each.
// handler returning false ends the scan early with no error, which is how a
// long-running rebuild is interrupted cleanly. A restarted rebuild simply
// rescans from the start, so interruption never double counts.
func ScanAll(db *sqlx.DB, handler func(*SegmentObservation) bool) error {
	rows, err := db.Queryx("select * from segment_observation order by arrival_time")
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		observation := SegmentObservation{}
		err = rows.StructScan(&observation)
		if err != nil {
			return err
		}
		if !handler(&observation) {
			return nil
		}
	}
	return rows.Err()
}
