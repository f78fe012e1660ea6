package aggregator

import (
	"encoding/json"
	"io"
	logger "log"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/business/data/segments"
	"github.com/metromind/metromind/foundation/metrics"
)

func TestFileObservationMessage(t *testing.T) {
	is := is.New(t)
	log := logger.New(io.Discard, "", 0)
	collection := makeStatsCollection(200, makeTransitHolidayCalendar())
	mc := metrics.NewAggregatorCollector()

	arrival := time.Date(2025, 6, 10, 17, 30, 0, 0, time.UTC)
	batch := segments.ObservationBatch{
		Observations: []*segments.SegmentObservation{
			testObservation("A", "B", arrival, 95),
			testObservation("B", "C", arrival, 80),
		},
	}
	payload, err := json.Marshal(batch)
	is.NoErr(err)

	fileObservationMessage(log, collection, mc, &nats.Msg{Data: payload})

	bucket, present := collection.lookup(segments.BucketKey{
		RouteId: "M5", FromStopId: "A", ToStopId: "B",
		DayType: segments.DayTypeTuesday, HourOfDay: 17,
	})
	is.True(present)
	is.Equal(bucket.snapshot().SampleCount, int64(1))

	_, present = collection.lookup(segments.BucketKey{
		RouteId: "M5", FromStopId: "B", ToStopId: "C",
		DayType: segments.DayTypeTuesday, HourOfDay: 17,
	})
	is.True(present)
}

func TestFileObservationMessage_rejectsGarbage(t *testing.T) {
	is := is.New(t)
	log := logger.New(io.Discard, "", 0)
	collection := makeStatsCollection(200, makeTransitHolidayCalendar())
	mc := metrics.NewAggregatorCollector()

	// unparseable payload
	fileObservationMessage(log, collection, mc, &nats.Msg{Data: []byte("not json")})
	is.Equal(collection.bucketCount(), 0)

	// parseable batch holding an observation that fails validation
	arrival := time.Date(2025, 6, 10, 17, 30, 0, 0, time.UTC)
	invalid := testObservation("A", "B", arrival, 95)
	invalid.ToStopId = invalid.FromStopId
	payload, err := json.Marshal(segments.ObservationBatch{
		Observations: []*segments.SegmentObservation{invalid},
	})
	is.NoErr(err)

	fileObservationMessage(log, collection, mc, &nats.Msg{Data: payload})
	is.Equal(collection.bucketCount(), 0)
}
