// Package routes provides the ordered stop sequences used to judge whether a
// reported stop change is an adjacent traversal or a gap in the feed.
package routes

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RouteStop is one position in a route's ordered stop sequence.
type RouteStop struct {
	RouteId     string `db:"route_id"`
	DirectionId string `db:"direction_id"`
	StopId      string `db:"stop_id"`
	Position    int    `db:"position"`
}

// StopSequences holds ordered stop positions per (route, direction) for lookup
// by vehicle trackers. It is built once at startup and read-only afterwards.
type StopSequences struct {
	positions map[string]map[string]int
}

func sequenceName(routeId string, directionId string) string {
	return fmt.Sprintf("%s_%s", routeId, directionId)
}

// MakeStopSequences builds an empty StopSequences
func MakeStopSequences() *StopSequences {
	return &StopSequences{positions: make(map[string]map[string]int)}
}

// AddSequence registers stopIds as the ordered stop sequence for routeId and directionId.
func (s *StopSequences) AddSequence(routeId string, directionId string, stopIds []string) {
	byStop := make(map[string]int, len(stopIds))
	for index, stopId := range stopIds {
		byStop[stopId] = index
	}
	s.positions[sequenceName(routeId, directionId)] = byStop
}

// KnownRoutes returns the number of (route, direction) sequences loaded.
func (s *StopSequences) KnownRoutes() int {
	return len(s.positions)
}

// StopsAhead returns how many positions toStop lies ahead of fromStop on the
// route's sequence: 1 means adjacent, greater than 1 means stops were skipped,
// negative means the vehicle appears to have moved backwards.
// known is false when the sequence or either stop is not on record, in which
// case the caller must treat the movement as an adjacent traversal since there
// is no evidence against it.
func (s *StopSequences) StopsAhead(routeId string, directionId string, fromStop string, toStop string) (steps int, known bool) {
	byStop, present := s.positions[sequenceName(routeId, directionId)]
	if !present {
		return 0, false
	}
	fromPosition, fromPresent := byStop[fromStop]
	toPosition, toPresent := byStop[toStop]
	if !fromPresent || !toPresent {
		return 0, false
	}
	return toPosition - fromPosition, true
}

// LoadStopSequences retrieves every route stop ordering from the route_stop table.
//
// create table route_stop
// (
//     route_id     text    not null,
//     direction_id text    not null default '',
//     stop_id      text    not null,
//     position     integer not null,
//     primary key (route_id, direction_id, position)
// );
func LoadStopSequences(db *sqlx.DB) (*StopSequences, error) {
	query := "select route_id, direction_id, stop_id, position from route_stop " +
		"order by route_id, direction_id, position"
	var rows []RouteStop
	err := db.Select(&rows, query)
	if err != nil {
		return nil, err
	}

	result := MakeStopSequences()
	for _, row := range rows {
		name := sequenceName(row.RouteId, row.DirectionId)
		byStop, present := result.positions[name]
		if !present {
			byStop = make(map[string]int)
			result.positions[name] = byStop
		}
		byStop[row.StopId] = row.Position
	}
	return result, nil
}
