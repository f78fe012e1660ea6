package aggregator

import (
	"time"

	"github.com/metromind/metromind/business/data/segments"
)

// Granularity names the bucket level that produced an estimate. The ladder
// runs from the most specific bucket with enough evidence down to none.
type Granularity string

const (
	GranularityExactDayHour Granularity = "exact-day-hour"
	GranularityDayTypeHour  Granularity = "day-type-hour"
	GranularityAllTimes     Granularity = "all-times"
	GranularityNone         Granularity = "none"
)

// PredictionResult is the answer to one travel time query. EstimateSeconds is
// nil when no bucket held enough evidence; an absent estimate is never
// reported as a zero second travel time.
type PredictionResult struct {
	RouteId         string
	FromStopId      string
	ToStopId        string
	EstimateSeconds *float64
	Granularity     Granularity
	// SampleCount is the all-time observation count behind the answering
	// bucket, so callers can judge how much evidence backs the estimate
	SampleCount int64
	WindowCount int
	MADSeconds  float64
	P10Seconds  int
	P90Seconds  int
}

// Predictor answers travel time queries from the live stats collection
type Predictor struct {
	stats              *statsCollection
	minimumSampleCount int64
}

func makePredictor(stats *statsCollection, minimumSampleCount int) *Predictor {
	return &Predictor{
		stats:              stats,
		minimumSampleCount: int64(minimumSampleCount),
	}
}

// candidateKeys returns the bucket keys for a query in fallback order: the
// exact weekday and hour, the pooled weekday/weekend at the same hour, then
// the all-times bucket. Mirrors the keys observations are filed under,
// including holidays pooling with the weekend at the coarse level.
func (p *Predictor) candidateKeys(routeId, fromStopId, toStopId string, at time.Time) []segments.BucketKey {
	at = at.UTC()
	day := segments.DayType(segments.WeekdayNumber(at))
	hour := at.Hour()

	coarseDay := day.Coarsen()
	if p.stats.calendar.isHoliday(at) {
		coarseDay = segments.DayTypeWeekend
	}

	return []segments.BucketKey{
		{RouteId: routeId, FromStopId: fromStopId, ToStopId: toStopId, DayType: day, HourOfDay: hour},
		{RouteId: routeId, FromStopId: fromStopId, ToStopId: toStopId, DayType: coarseDay, HourOfDay: hour},
		{RouteId: routeId, FromStopId: fromStopId, ToStopId: toStopId, DayType: segments.DayTypeAny, HourOfDay: segments.HourAny},
	}
}

var queryGranularities = []Granularity{
	GranularityExactDayHour,
	GranularityDayTypeHour,
	GranularityAllTimes,
}

// Estimate answers a travel time query for a route's stop pair at a moment in
// time. Walks the fallback ladder and answers from the first bucket holding at
// least the minimum sample count; when none does, the result carries
// GranularityNone and no estimate.
func (p *Predictor) Estimate(routeId, fromStopId, toStopId string, at time.Time) PredictionResult {
	result := PredictionResult{
		RouteId:     routeId,
		FromStopId:  fromStopId,
		ToStopId:    toStopId,
		Granularity: GranularityNone,
	}

	for i, key := range p.candidateKeys(routeId, fromStopId, toStopId, at) {
		bucket, present := p.stats.lookup(key)
		if !present {
			continue
		}
		snapshot := bucket.snapshot()
		if snapshot.SampleCount < p.minimumSampleCount || snapshot.WindowCount == 0 {
			continue
		}
		median := snapshot.MedianSeconds
		result.EstimateSeconds = &median
		result.Granularity = queryGranularities[i]
		result.SampleCount = snapshot.SampleCount
		result.WindowCount = snapshot.WindowCount
		result.MADSeconds = snapshot.MADSeconds
		result.P10Seconds = snapshot.P10Seconds
		result.P90Seconds = snapshot.P90Seconds
		return result
	}
	return result
}
