package monitor

import (
	"sync"
	"testing"

	"github.com/matryer/is"

	"github.com/metromind/metromind/business/data/segments"
	"github.com/metromind/metromind/foundation/metrics"
)

// capturePublisher collects published observations for inspection in tests
type capturePublisher struct {
	mu           sync.Mutex
	observations []*segments.SegmentObservation
}

func (p *capturePublisher) publish(observations []*segments.SegmentObservation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observations = append(p.observations, observations...)
}

func (p *capturePublisher) captured() []*segments.SegmentObservation {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]*segments.SegmentObservation, len(p.observations))
	copy(result, p.observations)
	return result
}

func testCollection(publisher segmentPublisher, expireVehicleSeconds int) *trackerCollection {
	return makeTrackerCollection(testLogger(), testSequences(), publisher,
		metrics.NewMonitorCollector(), 10, 7200, 16, expireVehicleSeconds)
}

func TestTrackerCollection_ordersUpdatesPerVehicle(t *testing.T) {
	is := is.New(t)
	publisher := &capturePublisher{}
	collection := testCollection(publisher, 900)

	// interleave two vehicles; each vehicle's updates must be applied in
	// dispatch order regardless of the interleaving
	now := int64(2000)
	collection.dispatch(testUpdate("S1", 1000), now)
	other := testUpdate("S2", 1000)
	other.VehicleId = "9999"
	collection.dispatch(other, now)

	collection.dispatch(testUpdate("S2", 1095), now)
	other = testUpdate("S3", 1120)
	other.VehicleId = "9999"
	collection.dispatch(other, now)

	collection.dispatch(testUpdate("S3", 1215), now)

	is.Equal(collection.vehicleCount(), 2)
	collection.shutdown()

	byVehicle := map[string][]*segments.SegmentObservation{}
	for _, observation := range publisher.captured() {
		byVehicle[observation.VehicleId] = append(byVehicle[observation.VehicleId], observation)
	}

	is.Equal(len(byVehicle["5678"]), 2)
	is.Equal(byVehicle["5678"][0].FromStopId, "S1")
	is.Equal(byVehicle["5678"][0].ToStopId, "S2")
	is.Equal(byVehicle["5678"][1].FromStopId, "S2")
	is.Equal(byVehicle["5678"][1].ToStopId, "S3")

	is.Equal(len(byVehicle["9999"]), 1)
	is.Equal(byVehicle["9999"][0].FromStopId, "S2")
	is.Equal(byVehicle["9999"][0].ToStopId, "S3")
}

func TestTrackerCollection_sweepInactive(t *testing.T) {
	is := is.New(t)
	publisher := &capturePublisher{}
	collection := testCollection(publisher, 900)

	collection.dispatch(testUpdate("S1", 1000), 1000)
	other := testUpdate("S1", 1000)
	other.VehicleId = "9999"
	collection.dispatch(other, 1500)

	is.Equal(collection.vehicleCount(), 2)

	// only the vehicle silent longer than the expiry window is evicted
	evicted := collection.sweepInactive(2000)
	is.Equal(evicted, 1)
	is.Equal(collection.vehicleCount(), 1)

	evicted = collection.sweepInactive(5000)
	is.Equal(evicted, 1)
	is.Equal(collection.vehicleCount(), 0)

	collection.shutdown()
}

func TestTrackerCollection_evictedVehicleStartsFresh(t *testing.T) {
	is := is.New(t)
	publisher := &capturePublisher{}
	collection := testCollection(publisher, 900)

	collection.dispatch(testUpdate("S1", 1000), 1000)
	collection.sweepInactive(3000)

	// the vehicle reappears at S2: no observation may bridge the silence
	collection.dispatch(testUpdate("S2", 4000), 4000)
	collection.shutdown()

	is.Equal(len(publisher.captured()), 0)
}
