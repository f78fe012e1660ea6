package monitor

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/metromind/metromind/business/data/segments"
	"github.com/metromind/metromind/foundation/metrics"
)

func TestObservationPublisher_stampsCreatedAtOnce(t *testing.T) {
	is := is.New(t)

	// no drain goroutine: the queued observation must arrive exactly as published
	p := &observationPublisher{
		log:     testLogger(),
		mc:      metrics.NewMonitorCollector(),
		pending: make(chan *segments.SegmentObservation, 4),
	}

	departure := time.Date(2025, 6, 10, 17, 30, 0, 0, time.UTC)
	observation := segments.MakeSegmentObservation("M5", "0", "5678", "trip1", "S1", "S2",
		departure, departure.Add(95*time.Second))
	is.True(observation.CreatedAt.IsZero())

	before := time.Now()
	p.publish([]*segments.SegmentObservation{observation})

	// publish is the single place CreatedAt is set, so the durable append
	// persists the same value the NATS payload carried
	is.True(!observation.CreatedAt.Before(before))

	queued := <-p.pending
	is.Equal(queued.CreatedAt, observation.CreatedAt)
}

func TestObservationPublisher_dropsOnFullQueue(t *testing.T) {
	is := is.New(t)

	p := &observationPublisher{
		log:     testLogger(),
		mc:      metrics.NewMonitorCollector(),
		pending: make(chan *segments.SegmentObservation, 1),
	}

	departure := time.Date(2025, 6, 10, 17, 30, 0, 0, time.UTC)
	first := segments.MakeSegmentObservation("M5", "0", "5678", "trip1", "S1", "S2",
		departure, departure.Add(95*time.Second))
	second := segments.MakeSegmentObservation("M5", "0", "5678", "trip1", "S2", "S3",
		departure.Add(95*time.Second), departure.Add(215*time.Second))

	p.publish([]*segments.SegmentObservation{first, second})

	// the overflowing observation is dropped, never blocked on
	is.Equal(<-p.pending, first)
	select {
	case extra := <-p.pending:
		t.Errorf("expected overflow to be dropped, got %s", extra)
	default:
	}
}
